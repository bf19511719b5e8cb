package config

import (
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Global paths used by file-serving routes and the photo pipeline.
var UploadPath = "/data/uploads"
var BaseURL = "http://localhost:8080"

type Config struct {
	Port string
	Env  string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	JWTAccessSecret    string
	JWTRefreshSecret   string
	JWTAccessTTLHours  int
	JWTRefreshTTLHours int

	// ✅ Redis Config
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// ✅ Kafka Config
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	// ✅ Razorpay Keys
	RazorpayKey    string
	RazorpaySecret string

	// ✅ SMTP Config
	SMTPHost      string
	SMTPPort      string
	SMTPUsername  string
	SMTPPassword  string
	SMTPFromName  string
	SMTPFromEmail string
	FrontendURL   string

	// ✅ FCM Config
	FCMCredentialsPath string
	FCMProjectID       string

	// Uploads + public file URLs
	UploadDir     string
	PublicBaseURL string

	CORSOrigins []string
	RateLimit   string // ulule format, e.g. "100-M"

	QRServiceURL string

	DesignerSessionTTL time.Duration
	FieldsCacheTTL     time.Duration

	// Seeded platform administrator
	PlatformAdminEmail    string
	PlatformAdminPassword string

	// Cron schedules
	SubscriptionExpirySchedule string
	PhotoReaperSchedule        string
	PurgeSchedule              string
	PurgeRetentionDays         int
}

func defaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "dev")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("JWT_ACCESS_TTL_HOURS", 24)
	v.SetDefault("JWT_REFRESH_TTL_HOURS", 168)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_TOPIC", "school-platform-events")
	v.SetDefault("KAFKA_GROUP_ID", "school-platform-notifications")
	v.SetDefault("SMTP_PORT", "587")
	v.SetDefault("SMTP_FROM_NAME", "School Platform")
	v.SetDefault("FRONTEND_URL", "http://localhost:5173")
	v.SetDefault("UPLOAD_DIR", "/data/uploads")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8080")
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173,http://127.0.0.1:5173,http://localhost:4173,http://127.0.0.1:4173")
	v.SetDefault("RATE_LIMIT", "100-M")
	v.SetDefault("QR_SERVICE_URL", "https://api.qrserver.com/v1/create-qr-code/")
	v.SetDefault("DESIGNER_SESSION_TTL", "12h")
	v.SetDefault("FIELDS_CACHE_TTL", "10m")
	v.SetDefault("PLATFORM_ADMIN_EMAIL", "admin@platform.local")
	v.SetDefault("SUBSCRIPTION_EXPIRY_SCHEDULE", "0 * * * *")
	v.SetDefault("PHOTO_REAPER_SCHEDULE", "15 2 * * *")
	v.SetDefault("PURGE_SCHEDULE", "45 2 * * *")
	v.SetDefault("PURGE_RETENTION_DAYS", 30)
}

// Load reads .env (if present) and the environment and returns a Config object
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file, using environment variables")
	}

	v := viper.New()
	defaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		Port: v.GetString("PORT"),
		Env:  v.GetString("ENV"),

		DBHost:     v.GetString("DB_HOST"),
		DBPort:     v.GetString("DB_PORT"),
		DBUser:     v.GetString("DB_USER"),
		DBPassword: v.GetString("DB_PASSWORD"),
		DBName:     v.GetString("DB_NAME"),
		DBSSLMode:  v.GetString("DB_SSLMODE"),

		JWTAccessSecret:    v.GetString("JWT_ACCESS_SECRET"),
		JWTRefreshSecret:   v.GetString("JWT_REFRESH_SECRET"),
		JWTAccessTTLHours:  v.GetInt("JWT_ACCESS_TTL_HOURS"),
		JWTRefreshTTLHours: v.GetInt("JWT_REFRESH_TTL_HOURS"),

		RedisAddr:     v.GetString("REDIS_ADDR"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),
		RedisDB:       v.GetInt("REDIS_DB"),

		KafkaBrokers: splitList(v.GetString("KAFKA_BROKERS")),
		KafkaTopic:   v.GetString("KAFKA_TOPIC"),
		KafkaGroupID: v.GetString("KAFKA_GROUP_ID"),

		RazorpayKey:    v.GetString("RAZORPAY_KEY_ID"),
		RazorpaySecret: v.GetString("RAZORPAY_KEY_SECRET"),

		SMTPHost:      v.GetString("SMTP_HOST"),
		SMTPPort:      v.GetString("SMTP_PORT"),
		SMTPUsername:  v.GetString("SMTP_USERNAME"),
		SMTPPassword:  v.GetString("SMTP_PASSWORD"),
		SMTPFromName:  v.GetString("SMTP_FROM_NAME"),
		SMTPFromEmail: v.GetString("SMTP_FROM_EMAIL"),
		FrontendURL:   v.GetString("FRONTEND_URL"),

		FCMCredentialsPath: v.GetString("FCM_CREDENTIALS_PATH"),
		FCMProjectID:       v.GetString("FCM_PROJECT_ID"),

		UploadDir:     v.GetString("UPLOAD_DIR"),
		PublicBaseURL: v.GetString("PUBLIC_BASE_URL"),

		CORSOrigins: splitList(v.GetString("CORS_ORIGINS")),
		RateLimit:   v.GetString("RATE_LIMIT"),

		QRServiceURL: v.GetString("QR_SERVICE_URL"),

		DesignerSessionTTL: v.GetDuration("DESIGNER_SESSION_TTL"),
		FieldsCacheTTL:     v.GetDuration("FIELDS_CACHE_TTL"),

		PlatformAdminEmail:    v.GetString("PLATFORM_ADMIN_EMAIL"),
		PlatformAdminPassword: v.GetString("PLATFORM_ADMIN_PASSWORD"),

		SubscriptionExpirySchedule: v.GetString("SUBSCRIPTION_EXPIRY_SCHEDULE"),
		PhotoReaperSchedule:        v.GetString("PHOTO_REAPER_SCHEDULE"),
		PurgeSchedule:              v.GetString("PURGE_SCHEDULE"),
		PurgeRetentionDays:         v.GetInt("PURGE_RETENTION_DAYS"),
	}

	UploadPath = cfg.UploadDir
	BaseURL = cfg.PublicBaseURL

	return cfg
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
