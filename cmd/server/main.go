package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bakery-inventory/config"
	"bakery-inventory/internal/api"
	"bakery-inventory/internal/broker"
	"bakery-inventory/internal/redisclient"
	"bakery-inventory/internal/service"
	"bakery-inventory/internal/store"
	"bakery-inventory/internal/util"
	"bakery-inventory/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting bakery inventory service")

	tp, err := util.InitTracer(cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	if cfg.Database.Migrate {
		migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := db.Migrate(migrateCtx)
		cancel()
		if err != nil {
			log.Fatalf("Failed to apply schema: %v", err)
		}
		log.Println("Database schema applied")
	}

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	orderProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
	defer orderProducer.Close()
	inventoryProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicInventory)
	defer inventoryProducer.Close()
	log.Println("Kafka producers initialized")

	eventPublisher := broker.NewEventPublisher(orderProducer, inventoryProducer)

	opts := service.Options{
		DemandLookaheadDays: cfg.Business.DemandLookaheadDays,
		Location:            cfg.Business.Location(),
		SyncLockTTL:         cfg.Business.SyncLockTTL,
	}

	aggregator := service.NewRequirementAggregator(db)
	synchronizer := service.NewStatusSynchronizer(db, aggregator, redisClient, eventPublisher, opts)

	orderService := service.NewOrderService(db, aggregator, synchronizer, eventPublisher, opts)
	ingredientService := service.NewIngredientService(db, synchronizer)
	recipeService := service.NewRecipeService(db, synchronizer)
	alertRanker := service.NewAlertRanker(db, aggregator, opts)
	dashboardService := service.NewDashboardService(db)
	reconciler := service.NewReconciler(db, synchronizer, eventPublisher, cfg.Business.StatusSyncConcurrency)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	inventoryConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicInventory, cfg.Kafka.ConsumerGroup)
	reconcileWorker := worker.NewReconcileWorker(inventoryConsumer, reconciler, cfg.Business.ReconcileInterval)
	go func() {
		if err := reconcileWorker.Start(workerCtx); err != nil && err != context.Canceled {
			logger.Error("Reconcile worker error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(api.Dependencies{
		Ingredients: ingredientService,
		Recipes:     recipeService,
		Orders:      orderService,
		Alerts:      alertRanker,
		Dashboard:   dashboardService,
		Reconciler:  reconciler,
		Auth:        api.NewAuthenticator(cfg.Auth.JWTSecret),
		Checks: []api.ReadinessCheck{
			{Name: "postgres", Ping: db.Ping},
			{Name: "redis", Ping: redisClient.Ping},
		},
		AlertLimitDashboard: cfg.Business.AlertLimitDashboard,
		AlertLimitList:      cfg.Business.AlertLimitList,
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	reconcileWorker.Stop()

	log.Println("Server exited")
}
