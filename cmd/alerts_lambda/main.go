package main

import (
	"context"
	"log/slog"
	"os"

	"ticketing/internal/alerts"
	"ticketing/internal/db"
	"ticketing/internal/store"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/joho/godotenv"
)

var consumer *alerts.Consumer

func init() {
	// Local runs read .env; deployed functions use their environment.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		logger.Error("DATABASE_URL is not set")
		os.Exit(1)
	}
	database, err := db.Connect(context.Background(), databaseURL)
	if err != nil {
		logger.Error("failed to connect database", slog.Any("error", err))
		os.Exit(1)
	}
	consumer = alerts.NewConsumer(store.NewAlertStore(database), logger)
}

func main() {
	lambda.Start(consumer.Handle)
}
