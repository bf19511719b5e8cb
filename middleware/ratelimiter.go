package middleware

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	ginlimiter "github.com/ulule/limiter/v3/drivers/middleware/gin"
	memory "github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// RateLimiter limits requests per client IP. formatted uses the limiter
// notation ("100-M" is 100 requests per minute). Counters live in Redis when a
// client is given so every instance shares them.
func RateLimiter(formatted string, client *redis.Client) gin.HandlerFunc {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		log.Printf("⚠️ invalid RATE_LIMIT %q, falling back to 100-M: %v", formatted, err)
		rate, _ = limiter.NewRateFromFormatted("100-M")
	}

	// 📊 Limiter store
	var store limiter.Store = memory.NewStore()
	if client != nil {
		rs, err := sredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: "ratelimit"})
		if err != nil {
			log.Printf("⚠️ rate limiter redis store unavailable, using memory: %v", err)
		} else {
			store = rs
		}
	}

	// 🚦 Gin-compatible middleware
	return ginlimiter.NewMiddleware(limiter.New(store, rate), ginlimiter.WithKeyGetter(func(c *gin.Context) string {
		return GetIPFromContext(c)
	}))
}
