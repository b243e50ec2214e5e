package router

import (
	"github.com/erp/catalog-engine/internal/infrastructure/config"
	"github.com/erp/catalog-engine/internal/infrastructure/logger"
	"github.com/erp/catalog-engine/internal/interfaces/http/handler"
	"github.com/erp/catalog-engine/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Handlers are the HTTP handlers mounted by NewEngine
type Handlers struct {
	Products    *handler.ProductHandler
	SortOrder   *handler.SortOrderHandler
	Currencies  *handler.CurrencyHandler
	Storefront  *handler.StorefrontHandler
	Inventory   *handler.InventoryHandler
	Maintenance *handler.MaintenanceHandler
	Outbox      *handler.OutboxHandler
	Health      *handler.HealthHandler
}

// EngineConfig configures the middleware stack
type EngineConfig struct {
	HTTP      config.HTTPConfig
	Telemetry config.TelemetryConfig
	// TracerProvider and Meter default to the global otel providers
	TracerProvider trace.TracerProvider
	Meter          metric.Meter
	Verifier       middleware.TokenVerifier
	Logger         *zap.Logger
}

// ProductPath is where public product pages are served
const ProductPath = "/api/v1/products"

// NewEngine builds the gin engine with the full middleware stack and every
// route of the catalog API
func NewEngine(cfg EngineConfig, h Handlers) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Order matters: the request id must exist before the logger and span
	// read it, and recovery must wrap everything below it.
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName:      cfg.Telemetry.ServiceName,
		TracerProvider:   cfg.TracerProvider,
		Enabled:          cfg.Telemetry.Enabled,
		SkipPathSuffixes: []string{"/health"},
	}))
	engine.Use(middleware.SpanEnricher())
	if cfg.Meter != nil {
		engine.Use(middleware.HTTPMetricsWithMeter(cfg.Meter))
	} else {
		engine.Use(middleware.HTTPMetrics())
	}
	engine.Use(middleware.Profiling(cfg.Telemetry.ProfilingEnabled))
	engine.Use(middleware.Secure())

	cors := middleware.DefaultCORSConfig()
	if len(cfg.HTTP.CORSAllowOrigins) > 0 {
		cors.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	}
	if len(cfg.HTTP.CORSAllowMethods) > 0 {
		cors.AllowMethods = cfg.HTTP.CORSAllowMethods
	}
	if len(cfg.HTTP.CORSAllowHeaders) > 0 {
		cors.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	}
	engine.Use(middleware.CORSWithConfig(cors))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	engine.GET("/health", h.Health.Check)

	// Swagger documentation endpoint
	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	r := NewRouter(engine, WithAPIVersion("v1"))

	storefront := NewDomainGroup("storefront", "/products")
	if cfg.HTTP.RateLimitRPS > 0 {
		storefront.Use(middleware.RateLimit(middleware.NewRateLimiter(cfg.HTTP.RateLimitRPS, cfg.HTTP.RateLimitBurst)))
		log.Info("Rate limiting enabled",
			zap.Float64("rps", cfg.HTTP.RateLimitRPS),
			zap.Int("burst", cfg.HTTP.RateLimitBurst),
		)
	}
	storefront.GET("", h.Storefront.List)
	storefront.GET("/:slug", h.Storefront.GetBySlug)
	r.Register(storefront)

	admin := NewDomainGroup("admin", "/admin").Use(middleware.AdminAuth(cfg.Verifier, log))
	products := admin.Group("products", "/products")
	products.POST("", h.Products.Create)
	products.GET("", h.Products.List)
	products.GET("/:id", h.Products.Get)
	products.PUT("/:id", h.Products.Update)
	products.DELETE("/:id", h.Products.Delete)
	products.POST("/action/fix-sort-order", h.SortOrder.FixSortOrder)
	products.POST("/action/unfix-sort-order", h.SortOrder.UnfixSortOrder)

	admin.Group("categories", "/categories").
		POST("/:id/action/recompute-sort-order", h.SortOrder.RecomputeCategory)
	admin.Group("sort-order", "/sort-order").
		POST("/action/recompute", h.Maintenance.RecomputeSortOrder)
	admin.Group("currencies", "/currencies").
		PUT("/:code/rate", h.Currencies.SetRate)

	inventory := admin.Group("inventory", "/inventory")
	inventory.GET("/:sku", h.Inventory.Get)
	inventory.PUT("/:sku/quantity", h.Inventory.SetQuantity)
	inventory.POST("/action/reserve", h.Inventory.Reserve)
	inventory.POST("/action/release", h.Inventory.Release)
	inventory.POST("/action/release-and-deduct", h.Inventory.ReleaseAndDeduct)

	admin.Group("search", "/search").
		POST("/action/reindex", h.Maintenance.Reindex)
	admin.Group("jobs", "/jobs").
		GET("/:id", h.Maintenance.GetJob)

	outbox := admin.Group("outbox", "/outbox")
	outbox.GET("/stats", h.Outbox.Stats)
	outbox.GET("/:id", h.Outbox.GetEntry)
	outbox.POST("/action/retry-dead", h.Outbox.RetryDead)
	r.Register(admin)

	r.Setup()
	return engine
}
