package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sharath018/school-management-backend/config"
	"github.com/sharath018/school-management-backend/database"
	"github.com/sharath018/school-management-backend/internal/auditlog"
	"github.com/sharath018/school-management-backend/internal/auth"
	"github.com/sharath018/school-management-backend/internal/event"
	"github.com/sharath018/school-management-backend/internal/eventtype"
	"github.com/sharath018/school-management-backend/internal/fees"
	"github.com/sharath018/school-management-backend/internal/guest"
	"github.com/sharath018/school-management-backend/internal/notification"
	"github.com/sharath018/school-management-backend/internal/platform"
	"github.com/sharath018/school-management-backend/internal/scheduler"
	"github.com/sharath018/school-management-backend/internal/school"
	"github.com/sharath018/school-management-backend/routes"
	"github.com/sharath018/school-management-backend/utils"
	"gorm.io/gorm"
)

// @title School Management API
// @version 1.0
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg := config.Load()
	db := database.Connect(cfg)

	if err := utils.InitRedis(cfg); err != nil {
		log.Fatalf("❌ Redis init failed: %v", err)
	}
	utils.InitializeKafka(cfg)
	utils.InitMailer(cfg)

	log.Println("🔄 Initializing Firebase...")
	if err := utils.InitFirebase(cfg); err != nil {
		log.Printf("⚠️ Firebase initialization failed: %v", err)
		log.Println("ℹ️ Continuing without Firebase (push notifications will be disabled)")
	} else if utils.IsFCMEnabled() {
		log.Println("✅ Firebase and FCM initialized successfully")
	}

	log.Println("🔄 Running database migrations...")
	if err := migrate(db); err != nil {
		log.Fatalf("❌ DB AutoMigrate failed: %v", err)
	}
	log.Println("✅ Database migrations completed")

	if err := os.MkdirAll(cfg.UploadDir, os.ModePerm); err != nil {
		log.Fatalf("❌ Failed to create upload directory: %v", err)
	}

	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS", "HEAD"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-School-ID", "Content-Length", "X-Requested-With", "Cache-Control"},
		ExposeHeaders:    []string{"Content-Length", "Content-Type", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	svcs := routes.Setup(router, cfg)

	if err := svcs.Auth.Seed(cfg.PlatformAdminEmail, cfg.PlatformAdminPassword); err != nil {
		log.Fatalf("❌ Failed to seed roles and platform admin: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 📨 Domain events → in-app notifications
	reader := utils.NewKafkaReader()
	if reader != nil {
		go notification.NewConsumer(reader, svcs.Notifications).Run(ctx)
	}

	// ⏰ Maintenance jobs
	sched := scheduler.New()
	for _, job := range scheduler.MaintenanceJobs(cfg, scheduler.Deps{
		Subscriptions: svcs.Platform,
		Photos:        svcs.Guests,
		EventTypes:    svcs.EventTypes,
		Audit:         svcs.Audit,
	}) {
		if err := sched.Add(job); err != nil {
			log.Fatalf("❌ %v", err)
		}
	}
	sched.Start()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("🚀 Server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("❌ Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("🔄 Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️ HTTP shutdown: %v", err)
	}
	sched.Stop(shutdownCtx)
	if reader != nil {
		if err := reader.Close(); err != nil {
			log.Printf("⚠️ Kafka reader close: %v", err)
		}
	}
	utils.CloseKafka()
	if err := utils.RedisClient.Close(); err != nil {
		log.Printf("⚠️ Redis close: %v", err)
	}
	log.Println("✅ Shutdown complete")
}

func migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&auth.UserRole{},
		&auth.User{},
		&auditlog.AuditLog{},
		&platform.Organization{},
		&platform.SubscriptionPlan{},
		&platform.Subscription{},
		&platform.Testimonial{},
		&platform.ContactMessage{},
		&school.School{},
		&eventtype.EventType{},
		&eventtype.FieldGroup{},
		&eventtype.Field{},
		&event.Event{},
		&guest.Guest{},
		&guest.GuestFieldValue{},
		&fees.FeeStructure{},
		&fees.FeeAssignment{},
		&fees.FeePayment{},
		&notification.NotificationTemplate{},
		&notification.NotificationLog{},
		&notification.InAppNotification{},
		&notification.DeviceToken{},
	)
}
