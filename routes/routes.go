package routes

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sharath018/school-management-backend/config"
	"github.com/sharath018/school-management-backend/database"
	"github.com/sharath018/school-management-backend/internal/auditlog"
	"github.com/sharath018/school-management-backend/internal/auth"
	"github.com/sharath018/school-management-backend/internal/designer"
	"github.com/sharath018/school-management-backend/internal/event"
	"github.com/sharath018/school-management-backend/internal/eventtype"
	"github.com/sharath018/school-management-backend/internal/fees"
	"github.com/sharath018/school-management-backend/internal/guest"
	"github.com/sharath018/school-management-backend/internal/notification"
	"github.com/sharath018/school-management-backend/internal/platform"
	"github.com/sharath018/school-management-backend/internal/reports"
	"github.com/sharath018/school-management-backend/internal/school"
	"github.com/sharath018/school-management-backend/internal/session"
	"github.com/sharath018/school-management-backend/middleware"
	"github.com/sharath018/school-management-backend/utils"

	_ "github.com/sharath018/school-management-backend/docs"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Services are the pieces main needs beyond HTTP: cron jobs, the event
// consumer and seeding.
type Services struct {
	Auth          auth.Service
	Audit         auditlog.Service
	Platform      *platform.Service
	EventTypes    *eventtype.Service
	Guests        *guest.Service
	Notifications *notification.Service
}

func Setup(r *gin.Engine, cfg *config.Config) *Services {
	db := database.DB
	redisClient := utils.RedisClient

	var publisher utils.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		publisher = utils.NewKafkaPublisher()
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "OK"})
	})
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	r.Static("/uploads", cfg.UploadDir)

	api := r.Group("/api/v1")
	api.Use(middleware.RateLimiter(cfg.RateLimit, redisClient))
	api.Use(middleware.AuditMiddleware())

	// ===========================
	// 🧱 Core services
	// ===========================
	auditSvc := auditlog.NewService(auditlog.NewRepository(db))
	auditHandler := auditlog.NewHandler(auditSvc, func(c *gin.Context) (*uint, bool) {
		ac, ok := middleware.GetAccessContext(c)
		if !ok {
			return nil, false
		}
		if ac.RoleName == middleware.RolePlatformAdmin && !ac.IsImpersonated() {
			return nil, true
		}
		return ac.GetAccessibleSchoolID(), false
	})

	authRepo := auth.NewRepository(db)
	authSvc := auth.NewService(authRepo, auditSvc, cfg)
	authHandler := auth.NewHandler(authSvc)

	schoolSvc := school.NewService(school.NewRepository(db), auditSvc)
	schoolHandler := school.NewHandler(schoolSvc)

	reportSvc := reports.NewService(reports.NewRepository(db), reports.NewExporter(reports.MustHTMLRenderer()), auditSvc, publisher, cfg.QRServiceURL)
	reportHandler := reports.NewHandler(reportSvc)

	var (
		fieldCache    eventtype.FieldCache
		designerStore = designer.NewMemoryStore()
		sessionStore  = session.NewMemoryStore()
		broker        = notification.NewMemoryBroker()
	)
	if redisClient != nil {
		fieldCache = eventtype.NewRedisFieldCache(redisClient, cfg.FieldsCacheTTL)
		designerStore = designer.NewRedisStore(redisClient, cfg.DesignerSessionTTL)
		sessionStore = session.NewRedisStore(redisClient, time.Duration(cfg.JWTAccessTTLHours)*time.Hour)
		broker = notification.NewRedisBroker(redisClient)
	} else {
		log.Println("⚠️ Redis unavailable: designer drafts, sessions and live notifications stay in memory")
	}

	notifSvc := notification.NewService(
		notification.NewRepository(db),
		authRepo,
		broker,
		notification.NewFCMPusher(utils.FirebaseClient),
		utils.SendHTMLEmail,
		auditSvc,
	)
	notifHandler := notification.NewHandler(notifSvc, authSvc)

	eventTypeSvc := eventtype.NewService(eventtype.NewRepository(db), fieldCache, auditSvc, publisher)
	eventTypeHandler := eventtype.NewHandler(eventTypeSvc)
	designerHandler := designer.NewHandler(designer.NewService(designerStore, eventTypeSvc))

	eventSvc := event.NewService(event.NewRepository(db), eventTypeSvc, auditSvc, notifSvc)
	eventHandler := event.NewHandler(eventSvc)

	guestSvc := guest.NewService(guest.NewRepository(db), eventSvc, eventTypeSvc, reportSvc,
		guest.NewPhotoStore(cfg.UploadDir, cfg.PublicBaseURL), auditSvc, publisher)
	guestHandler := guest.NewHandler(guestSvc)

	var gateway fees.Gateway
	if cfg.RazorpayKey != "" && cfg.RazorpaySecret != "" {
		gateway = fees.NewRazorpayGateway(cfg.RazorpayKey, cfg.RazorpaySecret)
	}
	feeHandler := fees.NewHandler(fees.NewService(fees.NewRepository(db), gateway, cfg.RazorpaySecret, reportSvc, auditSvc, publisher))

	platformSvc := platform.NewService(platform.NewRepository(db), schoolSvc, auditSvc)
	platformHandler := platform.NewHandler(platformSvc)

	sessionHandler := session.NewHandler(session.NewService(sessionStore, authSvc, auditSvc, publisher))

	// ===========================
	// 🌐 Public
	// ===========================
	authGroup := api.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/refresh", authHandler.Refresh)
		authGroup.POST("/forgot-password", authHandler.ForgotPassword)
		authGroup.POST("/reset-password", authHandler.ResetPassword)
		authGroup.POST("/logout", middleware.AuthMiddleware(authSvc), authHandler.Logout)
	}

	public := api.Group("/public")
	{
		public.GET("/testimonials", platformHandler.PublicTestimonials)
		public.POST("/contact", platformHandler.SubmitContact)
	}

	// EventSource cannot send headers, so the token rides in the query.
	api.GET("/notifications/stream-token", notifHandler.StreamWithToken)

	protected := api.Group("")
	protected.Use(middleware.AuthMiddleware(authSvc))

	protected.GET("/auth/me", authHandler.Me)

	// ===========================
	// 🔔 Notifications (any signed-in user)
	// ===========================
	notifRoutes := protected.Group("/notifications")
	{
		notifRoutes.GET("/inapp", notifHandler.ListInApp)
		notifRoutes.PATCH("/inapp/:id/read", notifHandler.MarkRead)
		notifRoutes.PATCH("/inapp/read-all", notifHandler.MarkAllRead)
		notifRoutes.GET("/stream", notifHandler.Stream)
		notifRoutes.POST("/devices", notifHandler.RegisterToken)
		notifRoutes.DELETE("/devices", notifHandler.RemoveToken)
	}

	// ===========================
	// 🛡 Platform administration
	// ===========================
	platformRoutes := protected.Group("/platform")
	{
		// Exit runs on the impersonated token, so it sits outside the role check.
		platformRoutes.POST("/impersonate/exit", sessionHandler.Exit)
		platformRoutes.GET("/impersonate", sessionHandler.State)

		admin := platformRoutes.Group("")
		admin.Use(middleware.RBACMiddleware(middleware.RolePlatformAdmin))

		admin.POST("/impersonate/:schoolID", sessionHandler.Impersonate)
		admin.GET("/dashboard", platformHandler.Dashboard)

		admin.POST("/organizations", platformHandler.CreateOrganization)
		admin.GET("/organizations", platformHandler.ListOrganizations)
		admin.GET("/organizations/:id", platformHandler.GetOrganization)
		admin.PUT("/organizations/:id", platformHandler.UpdateOrganization)
		admin.GET("/organizations/:id/schools", platformHandler.ListSchools)
		admin.POST("/organizations/:id/schools", platformHandler.CreateSchool)
		admin.POST("/organizations/:id/subscriptions", platformHandler.Subscribe)

		admin.POST("/plans", platformHandler.CreatePlan)
		admin.GET("/plans", platformHandler.ListPlans)
		admin.PUT("/plans/:id", platformHandler.UpdatePlan)

		admin.GET("/subscriptions", platformHandler.ListSubscriptions)
		admin.POST("/subscriptions/:id/cancel", platformHandler.CancelSubscription)
		admin.POST("/subscriptions/:id/renew", platformHandler.RenewSubscription)

		admin.POST("/testimonials", platformHandler.CreateTestimonial)
		admin.GET("/testimonials", platformHandler.ListTestimonials)
		admin.PUT("/testimonials/:id", platformHandler.UpdateTestimonial)
		admin.DELETE("/testimonials/:id", platformHandler.DeleteTestimonial)

		admin.GET("/contact-messages", platformHandler.ListMessages)
		admin.GET("/contact-messages/:id", platformHandler.GetMessage)
		admin.PATCH("/contact-messages/:id/status", platformHandler.SetMessageStatus)
		admin.POST("/contact-messages/:id/reply", platformHandler.ReplyMessage)

		admin.GET("/login-audit", auditHandler.GetLoginAudit)
		admin.GET("/login-audit/stats", auditHandler.GetLoginStats)
		admin.POST("/users", authHandler.CreateUser)
	}

	auditRoutes := protected.Group("/auditlogs")
	auditRoutes.Use(middleware.RBACMiddleware(middleware.RolePlatformAdmin, middleware.RoleSchoolAdmin))
	{
		auditRoutes.GET("", auditHandler.GetAuditLogs)
		auditRoutes.GET("/stats", auditHandler.GetAuditLogStats)
		auditRoutes.GET("/:id", auditHandler.GetAuditLogByID)
	}

	// ===========================
	// 🏫 School scoped
	// ===========================
	scoped := protected.Group("")
	scoped.Use(middleware.RequireSchoolAccess())
	writes := scoped.Group("")
	writes.Use(middleware.RequireWriteAccess())

	scoped.GET("/school", schoolHandler.Get)
	scoped.GET("/school/users", schoolHandler.ListUsers)
	writes.PUT("/school", schoolHandler.Update)
	writes.PATCH("/school/users/:userID/status", schoolHandler.SetUserStatus)

	scoped.GET("/event-types", eventTypeHandler.List)
	scoped.GET("/event-types/:id", eventTypeHandler.Get)
	scoped.GET("/event-types/:id/fields", eventTypeHandler.GetFields)
	writes.POST("/event-types", eventTypeHandler.Create)
	writes.PUT("/event-types/:id", eventTypeHandler.Update)
	writes.DELETE("/event-types/:id", eventTypeHandler.Delete)
	writes.PUT("/event-types/:id/fields", eventTypeHandler.SaveFields)

	designerRoutes := writes.Group("/event-types/:id/designer")
	{
		designerRoutes.POST("", designerHandler.Open)
		designerRoutes.GET("", designerHandler.State)
		designerRoutes.DELETE("", designerHandler.Discard)
		designerRoutes.POST("/groups", designerHandler.AddGroup)
		designerRoutes.PUT("/groups/:gid", designerHandler.UpdateGroup)
		designerRoutes.DELETE("/groups/:gid", designerHandler.DeleteGroup)
		designerRoutes.POST("/fields", designerHandler.AddField)
		designerRoutes.PUT("/fields/:fid", designerHandler.UpdateField)
		designerRoutes.DELETE("/fields/:fid", designerHandler.DeleteField)
		designerRoutes.POST("/fields/:fid/toggle", designerHandler.ToggleField)
		designerRoutes.POST("/fields/:fid/move", designerHandler.MoveField)
		designerRoutes.POST("/commit", designerHandler.Commit)
	}

	scoped.GET("/events", eventHandler.ListEvents)
	scoped.GET("/events/:id", eventHandler.GetEvent)
	scoped.GET("/events/:id/stats", eventHandler.GetStats)
	writes.POST("/events", eventHandler.CreateEvent)
	writes.PUT("/events/:id", eventHandler.UpdateEvent)
	writes.DELETE("/events/:id", eventHandler.DeleteEvent)

	scoped.GET("/events/:id/guests", guestHandler.List)
	scoped.GET("/events/:id/guests/form", guestHandler.Form)
	scoped.GET("/events/:id/guests/export", guestHandler.Export)
	scoped.GET("/events/:id/guests/:guestID", guestHandler.Get)
	writes.POST("/events/:id/guests", guestHandler.Create)
	writes.POST("/events/:id/guests/check-in", guestHandler.CheckIn)
	writes.POST("/events/:id/guests/import", guestHandler.Import)
	writes.PUT("/events/:id/guests/:guestID", guestHandler.Update)
	writes.DELETE("/events/:id/guests/:guestID", guestHandler.Delete)
	writes.POST("/events/:id/guests/:guestID/photo", guestHandler.UploadPhoto)

	scoped.GET("/reports/types", reportHandler.Types)
	scoped.POST("/reports/:type/render", reportHandler.Render)

	scoped.GET("/fees/structures", feeHandler.ListStructures)
	scoped.GET("/fees/assignments", feeHandler.ListAssignments)
	scoped.GET("/fees/assignments/:id", feeHandler.GetAssignment)
	scoped.GET("/fees/payments/:id/receipt", feeHandler.Receipt)
	scoped.GET("/fees/payments/export", feeHandler.Export)
	scoped.GET("/fees/summary", feeHandler.Summary)
	scoped.POST("/fees/assignments/:id/order", feeHandler.CreateOrder)
	writes.POST("/fees/structures", feeHandler.CreateStructure)
	writes.PUT("/fees/structures/:id", feeHandler.UpdateStructure)
	writes.POST("/fees/assignments", feeHandler.Assign)
	writes.POST("/fees/assignments/:id/waive", feeHandler.Waive)
	writes.POST("/fees/assignments/:id/payments", feeHandler.RecordPayment)
	protected.POST("/fees/verify", feeHandler.VerifyPayment)

	scoped.GET("/notifications/templates", notifHandler.ListTemplates)
	scoped.GET("/notifications/templates/:id", notifHandler.GetTemplate)
	scoped.GET("/notifications/logs", notifHandler.ListLogs)
	writes.POST("/notifications/templates", notifHandler.CreateTemplate)
	writes.PUT("/notifications/templates/:id", notifHandler.UpdateTemplate)
	writes.DELETE("/notifications/templates/:id", notifHandler.DeleteTemplate)
	writes.POST("/notifications/send", notifHandler.Send)

	return &Services{
		Auth:          authSvc,
		Audit:         auditSvc,
		Platform:      platformSvc,
		EventTypes:    eventTypeSvc,
		Guests:        guestSvc,
		Notifications: notifSvc,
	}
}
