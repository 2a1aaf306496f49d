package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/seongmin-ku/bedrockchat/internal/agent"
	"github.com/seongmin-ku/bedrockchat/internal/config"
	"github.com/seongmin-ku/bedrockchat/internal/history"
	"github.com/seongmin-ku/bedrockchat/internal/invoker"
	"github.com/seongmin-ku/bedrockchat/internal/logger"
	"github.com/seongmin-ku/bedrockchat/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.L.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger.SetLevel(cfg.Log.Level)

	ctx := context.Background()

	// One AWS config and one client per process; both are safe for
	// concurrent use across overlapping requests.
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Bedrock.Region))
	if err != nil {
		logger.L.Error("failed to load AWS configuration", "error", err)
		os.Exit(1)
	}
	bedrockClient := bedrockruntime.NewFromConfig(awsCfg)

	store, closeStore, err := buildHistoryStore(awsCfg, cfg.History)
	if err != nil {
		logger.L.Error("failed to initialize history store", "error", err)
		os.Exit(1)
	}
	if closeStore != nil {
		defer closeStore()
	}

	a := agent.New(invoker.New(bedrockClient), history.NewGateway(store))
	srv := server.New(a, cfg.Bedrock)

	serverAddr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	logger.L.Info("starting server",
		"address", serverAddr,
		"region", cfg.Bedrock.Region,
		"default_model", cfg.Bedrock.Model,
		"history_backend", cfg.History.Backend)

	go func() {
		if err := srv.Start(serverAddr); err != nil && err != http.ErrServerClosed {
			logger.L.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.L.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.L.Error("shutdown error", "error", err)
	}
}

// buildHistoryStore selects the persistence backend. A nil store means
// history is disabled and every request runs session-less.
func buildHistoryStore(awsCfg aws.Config, cfg config.HistoryConfig) (history.Store, func() error, error) {
	switch cfg.Backend {
	case config.HistoryBackendDynamoDB:
		if cfg.Table == "" {
			logger.L.Warn("dynamodb history backend selected without a table, history disabled")
			return nil, nil, nil
		}
		return history.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.Table), nil, nil
	case config.HistoryBackendSQLite:
		store, err := history.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case "":
		logger.L.Info("no history backend configured, running session-less")
		return nil, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown history backend: %s", cfg.Backend)
	}
}
