package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/samber/do"
	"github.com/serroba/url-shortener/internal/container"
	"github.com/serroba/url-shortener/internal/messaging"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	opts := &container.Options{
		RedisAddr:          getEnv("SERVICE_REDIS_ADDR", "localhost:6379"),
		LogFormat:          getEnv("SERVICE_LOG_FORMAT", "console"),
		LogLevel:           getEnv("SERVICE_LOG_LEVEL", "info"),
		AuditStream:        getEnv("SERVICE_AUDIT_STREAM", "auth.audit"),
		AuditConsumerGroup: getEnv("SERVICE_AUDIT_CONSUMER_GROUP", "audit-log"),
	}

	injector := do.New()
	do.ProvideValue(injector, opts)
	container.LoggerPackage(injector)
	container.RedisPackage(injector)
	container.ConsumerGroupPackage(injector)

	logger, err := do.Invoke[*zap.Logger](injector)
	if err != nil {
		log.Fatalf("create logger: %v", err)
	}

	group := do.MustInvoke[*messaging.ConsumerGroup](injector)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := group.Start(ctx); err != nil {
		logger.Fatal("failed to start consumer group", zap.Error(err))
	}

	logger.Info("consuming audit events", zap.String("stream", opts.AuditStream))

	<-ctx.Done()

	logger.Info("shutting down")

	if err := injector.Shutdown(); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}

	_ = logger.Sync()
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return defaultValue
}
