package main

import (
	"context"

	"crm-service/internal/handler"
	mid "crm-service/internal/middleware"
	"crm-service/internal/service"
	"crm-service/pkg/clock"
	"crm-service/pkg/config"
	"crm-service/pkg/database"
	"crm-service/pkg/jwtutil"
	"crm-service/pkg/logger"
	"crm-service/pkg/storage"
	"crm-service/prometheus"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	appConfig, err := config.Load()
	if err != nil {
		// Can't use structured logger yet since it's not initialized
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	logger.InitLogger(appConfig)
	log := logger.GetLogger()
	defer log.Sync()

	log.Info("Starting "+appConfig.ServiceName, appConfig.LogConfig()...)

	// Initialize Prometheus metrics
	prometheus.InitMetrics(appConfig)
	log.Info("Prometheus metrics initialized",
		zap.String("metrics_prefix", appConfig.Metrics.Prefix))

	// Initialize database
	db, err := database.InitDB(appConfig)
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	log.Info("Database connection established", zap.String("driver", appConfig.DB.Driver))

	if appConfig.Seed.CatalogFile != "" {
		created, err := database.SeedCatalogFile(db, appConfig.Seed.CatalogFile)
		if err != nil {
			log.Fatal("Failed to seed product catalog", zap.String("file", appConfig.Seed.CatalogFile), zap.Error(err))
		}
		log.Info("Product catalog seeded", zap.Int("created", created))
	}

	store, err := storage.NewLocal(appConfig.Media.Root)
	if err != nil {
		log.Fatal("Failed to prepare media storage", zap.String("root", appConfig.Media.Root), zap.Error(err))
	}

	clk := clock.System()
	users := service.NewUserService(db, clk, store)
	if err := users.EnsureSuperuser(context.Background(), appConfig.Admin); err != nil {
		log.Fatal("Failed to create admin user", zap.Error(err))
	}

	h := &handler.Handler{
		ServiceName: appConfig.ServiceName,
		Leads:       service.NewLeadService(db, clk, store),
		Activities:  service.NewActivityService(db, clk, store),
		Catalog:     service.NewCatalogService(db, clk),
		Users:       users,
		Dashboard:   service.NewDashboardService(db, clk),
		JWT:         jwtutil.NewJWTUtil(&appConfig.JWT),
		Ping:        database.Ping,
	}

	// Initialize Echo instance
	e := echo.New()
	e.HideBanner = true
	e.Validator = mid.NewRequestValidator()

	// Middleware
	e.Use(middleware.Recover())
	e.Use(mid.RequestIDMiddleware)
	e.Use(logger.Middleware())
	e.Use(prometheus.MetricsMiddleware())

	handler.RegisterRoutes(e, h)

	// Start server
	port := appConfig.Server.Port
	log.Info("Starting server", zap.String("port", port))
	if err := e.Start(":" + port); err != nil {
		log.Fatal("Server error", zap.Error(err))
	}
}
