package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/makerspace/makeradmin-sub000/internal/accessy"
	"github.com/makerspace/makeradmin-sub000/internal/auth"
	"github.com/makerspace/makeradmin-sub000/internal/billing"
	"github.com/makerspace/makeradmin-sub000/internal/config"
	"github.com/makerspace/makeradmin-sub000/internal/email"
	"github.com/makerspace/makeradmin-sub000/internal/member"
	"github.com/makerspace/makeradmin-sub000/internal/product"
	"github.com/makerspace/makeradmin-sub000/internal/span"
	"github.com/makerspace/makeradmin-sub000/internal/subscription"
	"github.com/makerspace/makeradmin-sub000/internal/transaction"
)

type Server struct {
	router *gin.Engine
	http   *http.Server
	db     *sqlx.DB
	config *config.Config
	email  *email.Service
}

func New(db *sqlx.DB, cfg *config.Config, emailService *email.Service, billingClient billing.Client) *Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(RequestLoggingMiddleware())
	router.Use(MetricsMiddleware())
	// Generous enough for the member frontend polling access status, tight
	// enough to stop checkout hammering.
	router.Use(RateLimitMiddleware(10, 30))

	spanRepo := span.NewRepository(db)
	spanSvc := span.NewService(spanRepo)
	spanHandler := span.NewHandler(spanSvc)

	memberRepo := member.NewRepository(db)
	productRepo := product.NewRepository(db)
	accessClient := accessy.New(cfg.AccessyURL, cfg.AccessyToken)

	txRepo := transaction.NewRepository(db)
	txSvc := transaction.NewService(txRepo, productRepo, memberRepo, accessClient, emailService, nil,
		transaction.Limits{
			MinCents:       cfg.PurchaseMinCents,
			MaxCents:       cfg.PurchaseMaxCents,
			ToleranceCents: cfg.AmountToleranceCents,
		}, cfg.Currency)
	txHandler := transaction.NewHandler(txSvc)

	subSvc := subscription.NewService(billingClient, memberRepo, spanSvc, emailService,
		map[span.AccessType]int{
			span.TypeMembership: cfg.MembershipBindingMonths,
			span.TypeLabaccess:  cfg.LabaccessBindingMonths,
		})
	subHandler := subscription.NewHandler(subSvc)

	eventRepo := billing.NewEventRepository(db)
	processor := billing.NewProcessor(eventRepo, memberRepo, txSvc)

	router.GET("/health", Health)
	router.GET("/metrics", Metrics())
	router.GET("/test-email", TestEmail(emailService))
	router.POST("/webhook", billing.NewWebhookHandler(cfg.StripeWebhookSecret, processor))
	SetupSwagger(router)

	authMiddleware := auth.AuthMiddleware(cfg.JWTSecret)
	protected := router.Group("/")
	protected.Use(authMiddleware)
	{
		protected.GET("/access", spanHandler.GetMyAccess)
		protected.GET("/subscriptions", subHandler.ListMy)
		protected.POST("/subscriptions/:type/start", subHandler.Start)
		protected.POST("/subscriptions/:type/cancel", subHandler.Cancel)
		protected.POST("/webshop/purchase", txHandler.Purchase)
		protected.GET("/webshop/transactions", txHandler.ListMy)
	}

	// Confirm/fail/ship are driven by the payment integration and the
	// periodic shipper, not by members.
	adminMiddleware := auth.RequireRole("admin")
	ops := router.Group("/webshop")
	ops.Use(authMiddleware, adminMiddleware)
	{
		ops.POST("/transactions/:transactionID/confirm", txHandler.Confirm)
		ops.POST("/transactions/:transactionID/fail", txHandler.Fail)
		ops.POST("/ship", txHandler.Ship)
	}

	admin := router.Group("/admin")
	admin.Use(authMiddleware, adminMiddleware)
	{
		admin.GET("/members/:memberID/spans", spanHandler.ListMemberSpans)
		admin.GET("/members/:memberID/access", spanHandler.GetMemberAccess)
		admin.DELETE("/spans/:spanID", spanHandler.DeleteSpan)
		admin.GET("/members/:memberID/transactions", txHandler.ListMember)
		admin.GET("/members/:memberID/subscriptions", subHandler.ListMember)
		admin.POST("/members/:memberID/subscriptions/:type/pause", subHandler.Pause)
		admin.POST("/members/:memberID/subscriptions/:type/resume", subHandler.Resume)
	}

	return &Server{
		router: router,
		db:     db,
		config: cfg,
		email:  emailService,
	}
}

func (s *Server) Start(port string) error {
	s.http = &http.Server{
		Addr:    ":" + port,
		Handler: s.router,
	}
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
