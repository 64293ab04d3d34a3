package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ticketing/internal/alerts"
	"ticketing/internal/config"
	"ticketing/internal/db"
	"ticketing/internal/gateway"
	"ticketing/internal/handlers"
	"ticketing/internal/middleware"
	"ticketing/internal/services"
	"ticketing/internal/store"
	dynamostore "ticketing/internal/store/dynamodb"
	"ticketing/internal/validator"
	"ticketing/internal/websocket"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.Load()
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx := context.Background()
	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer database.Close()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		logger.Error("unable to load AWS config", slog.Any("error", err))
		os.Exit(1)
	}
	dynamoClient := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.DynamoEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.DynamoEndpoint)
		}
	})
	var sqsClient alerts.SQSAPI
	if cfg.AlertsQueueURL != "" {
		sqsClient = sqs.NewFromConfig(awsCfg)
	}

	var limiter middleware.Counter
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, rate limits fail open", slog.Any("error", err))
		}
		limiter = redisClient
	}

	users := store.NewUserStore(database)
	wallets := store.NewWalletStore(database)
	transactions := store.NewTransactionStore(database)
	orders := store.NewOrderStore(database)
	inventory := store.NewInventoryStore(database)
	pendingEvents := store.NewPendingEventStore(database)
	adminRecs := store.NewAdminRecommendationStore(database)
	admin := store.NewAdminStore(database)
	audit := store.NewAuditStore(database)
	alertStore := store.NewAlertStore(database)
	recommendations := dynamostore.New(dynamoClient, cfg.DynamoRecommendationsTable)
	txRunner := db.NewTxRunner(database)

	hub := websocket.NewHub()
	dispatcher := alerts.NewDispatcher(logger, sqsClient, cfg.AlertsQueueURL)
	gw := gateway.New(cfg.GatewayBaseURL, cfg.GatewayKeyID, cfg.GatewayKeySecret, cfg.GatewayTimeout)

	ledger := services.NewLedger(txRunner, wallets, transactions, users, hub, logger)
	payments := services.NewPaymentService(txRunner, ledger, orders, inventory, audit, gw, dispatcher, cfg.GatewayCurrency, logger)
	recommendationService := services.NewRecommendationService(txRunner, ledger, recommendations, pendingEvents, audit, hub, dispatcher, logger)
	adjudication := services.NewAdjudicationService(txRunner, pendingEvents, adminRecs, inventory, audit, logger)
	inventoryService := services.NewInventoryService(txRunner, inventory, audit, logger)

	handler := handlers.New(cfg, logger, ledger, payments, recommendationService, adjudication, inventoryService, admin, audit, alertStore, hub, limiter)
	// Status long-polls hold a response for up to validator.MaxWait.
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: validator.MaxWait + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("ticketing API listening", slog.String("addr", server.Addr), slog.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.Any("error", err))
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	if cfg.IsDevelopment() {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}
