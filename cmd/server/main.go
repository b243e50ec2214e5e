package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/erp/catalog-engine/docs"
	"github.com/erp/catalog-engine/internal/bootstrap"
	"github.com/erp/catalog-engine/internal/infrastructure/auth"
	"github.com/erp/catalog-engine/internal/infrastructure/config"
	"github.com/erp/catalog-engine/internal/infrastructure/logger"
	"github.com/erp/catalog-engine/internal/infrastructure/messaging"
	"github.com/erp/catalog-engine/internal/infrastructure/scheduler"
	"github.com/erp/catalog-engine/internal/infrastructure/telemetry"
	"github.com/erp/catalog-engine/internal/interfaces/http/handler"
	"github.com/erp/catalog-engine/internal/interfaces/http/middleware"
	"github.com/erp/catalog-engine/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

//go:generate swag init --dir ../.. --generalInfo cmd/server/main.go --output ../../docs --parseInternal

//	@title			Catalog Engine API
//	@version		1.0
//	@description	Catalog consistency and ordering engine: products, inventory ledger, category sort order, price projection and search listings
//	@termsOfService	http://swagger.io/terms/

//	@contact.name	API Support

//	@license.name	Apache 2.0
//	@license.url	http://www.apache.org/licenses/LICENSE-2.0.html

//	@host		localhost:8080
//	@BasePath	/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token authentication. Format: "Bearer {token}"

//	@externalDocs.description	OpenAPI
//	@externalDocs.url			https://swagger.io/resources/open-api/

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	baseLog, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.Setup(ctx, cfg.Telemetry, baseLog)
	if err != nil {
		baseLog.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	log := tel.WrapLogger(baseLog)
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting catalog engine",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("search_driver", cfg.Search.Driver),
	)

	app, err := bootstrap.New(cfg, log, bootstrap.Options{Telemetry: tel})
	if err != nil {
		log.Fatal("Failed to initialize catalog engine", zap.Error(err))
	}
	if err := app.Start(ctx); err != nil {
		log.Fatal("Failed to start background services", zap.Error(err))
	}

	var cron *scheduler.CronTrigger
	if cfg.Scheduler.Enabled {
		cron = scheduler.NewCronTrigger(scheduler.CronTriggerConfig{
			DailyHour:     cfg.Scheduler.DailyHour,
			DailyMinute:   cfg.Scheduler.DailyMinute,
			CheckInterval: cfg.Scheduler.CheckInterval,
		}, app.Scheduler, log)
		if err := cron.Start(ctx); err != nil {
			log.Fatal("Failed to start maintenance cron", zap.Error(err))
		}
		log.Info("Maintenance cron started",
			zap.Int("daily_hour", cfg.Scheduler.DailyHour),
			zap.Int("daily_minute", cfg.Scheduler.DailyMinute),
		)
	}

	var rates *messaging.RateConsumer
	ratesDone := make(chan struct{})
	if cfg.Kafka.Enabled {
		rates = messaging.NewRateConsumer(messaging.NewKafkaReader(cfg.Kafka), app.Prices,
			messaging.DefaultRateConsumerConfig(), log.Named("rates"))
		go func() {
			defer close(ratesDone)
			if err := rates.Run(ctx); err != nil {
				log.Error("Rate consumer stopped", zap.Error(err))
			}
		}()
	} else {
		close(ratesDone)
	}

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	if err := middleware.SetupValidator(); err != nil {
		log.Fatal("Failed to set up request validation", zap.Error(err))
	}

	engine := router.NewEngine(router.EngineConfig{
		HTTP:           cfg.HTTP,
		Telemetry:      cfg.Telemetry,
		TracerProvider: tel.TracerProvider(),
		Verifier:       auth.NewVerifier(cfg.JWT),
		Logger:         log,
	}, router.Handlers{
		Products:    handler.NewProductHandler(app.Products),
		SortOrder:   handler.NewSortOrderHandler(app.SortOrder),
		Currencies:  handler.NewCurrencyHandler(app.Prices),
		Storefront:  handler.NewStorefrontHandler(app.Storefront, app.Products, router.ProductPath),
		Inventory:   handler.NewInventoryHandler(app.Ledger),
		Maintenance: handler.NewMaintenanceHandler(app.Scheduler),
		Outbox:      handler.NewOutboxHandler(app.OutboxAdmin),
		Health:      handler.NewHealthHandler(app.DB),
	})

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if cron != nil {
		if err := cron.Stop(shutdownCtx); err != nil {
			log.Error("Error stopping maintenance cron", zap.Error(err))
		}
	}
	<-ratesDone
	if rates != nil {
		if err := rates.Close(); err != nil {
			log.Error("Error closing rate consumer", zap.Error(err))
		}
	}
	if err := app.Close(shutdownCtx); err != nil {
		log.Error("Error stopping catalog engine", zap.Error(err))
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down telemetry", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
