package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/gpazevedo/alex/infrastructure/config"
	"github.com/gpazevedo/alex/infrastructure/di"
	"github.com/gpazevedo/alex/infrastructure/persistence/dynamodb"
	"github.com/gpazevedo/alex/infrastructure/persistence/schema"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	container, cleanup, err := di.InitializeContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}
	defer cleanup()
	logger := container.Logger

	// DynamoDB Local starts empty
	if cfg.DynamoDBEndpoint != "" {
		for _, table := range []*dynamodb.Table{container.Tables.Users, container.Tables.Instruments} {
			if _, err := table.CreateIfMissing(ctx, schema.CreateTableInput(table.Schema())); err != nil {
				logger.Fatal("Failed to create local table", zap.String("table", table.Schema().Name), zap.Error(err))
			}
		}
	}

	srv := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      container.Router.Setup(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting server",
			zap.String("address", cfg.ServerAddress),
			zap.String("usersTable", cfg.UsersTable),
			zap.String("instrumentsTable", cfg.InstrumentsTable),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}

	_ = logger.Sync()
	log.Println("Server stopped")
}
