package router

import (
	"time"

	"taxly/config"
	"taxly/internal/domain"
	"taxly/internal/handler"
	"taxly/internal/middleware"
	"taxly/internal/repository"
	"taxly/internal/service"
	"taxly/pkg/encryption"
	"taxly/pkg/nicepay"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func Setup(cfg *config.Config, db *gorm.DB, gateway nicepay.Client, enc *encryption.Service) *gin.Engine {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	// Skip gin.Logger() to reduce log noise; use gin.Default() if you need request logging
	r.Use(middleware.RateLimit(middleware.NewInMemoryRateLimiter(100, 60*time.Second)))

	// Repositories
	userRepo := repository.NewUserRepository(db)
	creditRepo := repository.NewCreditRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	credentialRepo := repository.NewCredentialRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	// Services
	authSvc := service.NewAuthService(cfg, userRepo)
	creditSvc := service.NewCreditService(db, userRepo, creditRepo)
	subSvc := service.NewSubscriptionService(subRepo, userRepo, creditSvc)
	paymentSvc := service.NewPaymentService(cfg, gateway, paymentRepo, subRepo, creditSvc, subSvc)
	credentialSvc := service.NewCredentialService(credentialRepo, enc)

	// Handlers
	authHandler := handler.NewAuthHandler(authSvc, auditRepo)
	creditHandler := handler.NewCreditHandler(creditSvc)
	subHandler := handler.NewSubscriptionHandler(subSvc)
	paymentHandler := handler.NewPaymentHandler(paymentSvc, auditRepo)
	webhookHandler := handler.NewWebhookHandler(paymentSvc, credentialSvc, auditRepo)
	adminHandler := handler.NewAdminHandler(creditSvc, userRepo, auditRepo)
	cronHandler := handler.NewCronHandler(paymentSvc, creditSvc)
	credentialHandler := handler.NewCredentialHandler(credentialSvc)

	authMw := middleware.AuthRequired(&cfg.JWT)
	internalMw := middleware.InternalAPIKey(cfg.Internal.APIKey)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")
	{
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
			authGroup.GET("/me", authMw, authHandler.Me)
		}

		credits := api.Group("/credits")
		{
			credits.GET("/plans", creditHandler.Plans)
			credits.GET("/balance", authMw, creditHandler.GetBalance)
			credits.GET("/history", authMw, creditHandler.History)
		}

		subs := api.Group("/subscriptions")
		subs.Use(authMw)
		{
			subs.GET("/me", subHandler.GetMine)
			subs.POST("/cancel", subHandler.Cancel)
			subs.POST("/reactivate", subHandler.Reactivate)
			subs.POST("/change-tier", subHandler.ChangeTier)
			subs.GET("/change-tier-quote", subHandler.Quote)
		}

		payments := api.Group("/payments")
		payments.Use(authMw)
		{
			payments.POST("/prepare-credit", paymentHandler.PrepareCredit)
			payments.POST("/prepare-subscription", paymentHandler.PrepareSubscription)
			payments.POST("/prepare-upgrade", paymentHandler.PrepareUpgrade)
			payments.POST("/approve", paymentHandler.Approve)
			payments.POST("/:id/cancel", paymentHandler.Cancel)
			payments.GET("/history", paymentHandler.History)
		}

		credentials := api.Group("/credentials")
		credentials.Use(authMw)
		{
			credentials.POST("", credentialHandler.Create)
			credentials.GET("", credentialHandler.List)
			credentials.GET("/:id", credentialHandler.Get)
			credentials.POST("/:id/deactivate", credentialHandler.Deactivate)
			credentials.DELETE("/:id", credentialHandler.Delete)
			credentials.POST("/:id/test-connection",
				middleware.RequireCredit(creditSvc, domain.CreditCostConnectionTest, "Certificate connection test"),
				credentialHandler.TestConnection)
		}

		api.POST("/webhooks/nicepay", webhookHandler.Nicepay)
		api.POST("/webhook/decrypt-credentials", internalMw, webhookHandler.DecryptCredentials)

		internal := api.Group("/internal")
		internal.Use(internalMw)
		{
			internal.POST("/subscriptions/renew", cronHandler.RenewSubscriptions)
			internal.POST("/subscriptions/expire", cronHandler.ExpireSubscriptions)
			internal.POST("/credits/expire", cronHandler.ExpireCredits)
		}

		admin := api.Group("/admin")
		admin.Use(authMw, middleware.AdminRequired())
		{
			admin.POST("/credits/grant", adminHandler.GrantCredits)
			admin.GET("/users", adminHandler.ListUsers)
			admin.GET("/audit-logs", adminHandler.ListAuditLogs)
		}
	}

	return r
}
