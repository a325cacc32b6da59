package v1

import (
	"github.com/gin-gonic/gin"

	"backoffice/internal/domain/ledger"
	"backoffice/internal/domain/procurement"
	"backoffice/internal/domain/sales"
	"backoffice/internal/domain/stockaudit"
	"backoffice/internal/domain/token"
	"backoffice/internal/infrastructure/http/v1/handlers"
	"backoffice/internal/infrastructure/http/v1/middleware"
	"backoffice/pkg/logger"
)

// Version is reported by /health/info.
const Version = "0.3.0"

// Services are the domain services the API exposes.
type Services struct {
	Ledger         *ledger.Service
	PurchaseOrders *procurement.Machine[*procurement.PurchaseOrder]
	Reorders       *procurement.Machine[*procurement.Reorder]
	Audits         *stockaudit.Service
	Sales          *sales.Service
}

// RouterConfig holds router configuration.
type RouterConfig struct {
	Services Services

	// Logger for request logging
	Logger *logger.Logger

	// StaffValidator authenticates back-office bearer tokens
	StaffValidator middleware.StaffValidator

	// Idempotency stores responses of keyed requests; nil disables the middleware
	Idempotency middleware.IdempotencyStore

	// Pinger backs the readiness probe; nil means the in-memory store
	Pinger handlers.Pinger
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(log))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(Version, cfg.Pinger)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	baseHandler := handlers.NewBaseHandler()
	purchaseOrders := handlers.NewPurchaseOrderHandler(baseHandler, cfg.Services.PurchaseOrders)
	reorders := handlers.NewReorderHandler(baseHandler, cfg.Services.Reorders)
	salesHandler := handlers.NewSalesHandler(baseHandler, cfg.Services.Sales)

	v1 := router.Group("/api/v1")
	{
		// Supplier links and the payment gateway carry their own credentials.
		public := v1.Group("/public")
		RegisterSupplierRoutes(public.Group("/"+procurement.KindPath(token.KindPurchaseOrder)), purchaseOrders)
		RegisterSupplierRoutes(public.Group("/"+procurement.KindPath(token.KindReorder)), reorders)

		v1.POST("/webhooks/payments", salesHandler.PaymentWebhook)

		protected := v1.Group("")
		protected.Use(middleware.Auth(cfg.StaffValidator))
		if cfg.Idempotency != nil {
			protected.Use(middleware.Idempotency(cfg.Idempotency))
		}

		registerStockRoutes(protected, baseHandler, cfg.Services)

		RegisterOrderRoutes(protected.Group("/"+procurement.KindPath(token.KindPurchaseOrder)), purchaseOrders)
		reorderGroup := protected.Group("/" + procurement.KindPath(token.KindReorder))
		RegisterOrderRoutes(reorderGroup, reorders)
		reorderGroup.POST("/:id/receipts", reorders.RecordReceipt)

		registerSalesRoutes(protected, salesHandler)
	}

	return router
}

// registerStockRoutes registers units, ledger and audit endpoints.
func registerStockRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, svc Services) {
	stockHandler := handlers.NewStockHandler(base, svc.Ledger)
	auditHandler := handlers.NewAuditHandler(base, svc.Audits)

	units := rg.Group("/units")
	{
		units.POST("", stockHandler.RegisterUnit)
		units.GET("/:id", stockHandler.GetUnit)
		units.POST("/:id/adjustments", stockHandler.Adjust)
		units.GET("/:id/ledger", stockHandler.History)
		units.GET("/:id/verification", stockHandler.Verify)
		units.GET("/:id/audits", auditHandler.ListByUnit)
	}

	audits := rg.Group("/audits")
	{
		audits.POST("", auditHandler.Create)
		audits.GET("/:id", auditHandler.Get)
		audits.DELETE("/:id", auditHandler.Delete)
	}
}

// registerSalesRoutes registers sale and refund endpoints.
func registerSalesRoutes(rg *gin.RouterGroup, h *handlers.SalesHandler) {
	s := rg.Group("/sales")
	{
		s.POST("", h.Create)
		s.POST("/pending", h.CreatePending)
		s.GET("/:id", h.Get)
		s.GET("/:id/payments", h.Payments)
		s.POST("/:id/refund", h.Refund)
	}
}
