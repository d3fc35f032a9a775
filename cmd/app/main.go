package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"detectbench/internal/config"
	"detectbench/pkg/engine"
	"detectbench/pkg/log"
	"detectbench/pkg/redis"

	"github.com/joho/godotenv"
)

func main() {
	logger := log.NewLogger()
	if err := godotenv.Load(); err != nil {
		logger.Warnf("No .env file loaded: %v", err)
	}

	validator := config.NewValidator()
	settings, err := config.LoadSettings(validator)
	if err != nil {
		logger.Fatal(err)
	}

	fiberApp := config.NewFiber(logger, settings)
	history := redis.New(redis.Config{
		Address:  settings.RedisAddress,
		Password: settings.RedisPassword,
		DB:       settings.RedisDB,
		History:  settings.TimingHistory,
	}, logger)
	provider := engine.NewProvider(engine.NewFactory(settings.EngineConfig()), logger)

	server, err := config.NewServer(
		config.WithFiber(fiberApp),
		config.WithLogger(logger),
		config.WithSettings(settings),
		config.WithValidator(validator),
		config.WithMiddleware(),
		config.WithStorage(),
		config.WithRedisServer(history),
		config.WithEngineProvider(provider),
		config.WithUtils(),
	)
	if err != nil {
		logger.Fatal(err)
	}

	server.RegisterHandler()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.Run(); err != nil {
			logger.Fatalf("Error starting server: %v", err)
		}
	}()

	logger.WithFields(log.Fields{
		"port":    settings.AppPort,
		"model":   settings.ResolvedModelPath(),
		"backend": settings.EngineBackend,
	}).Info("Server started successfully")

	<-sigChan
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("Error during shutdown: %v", err)
	}
}
