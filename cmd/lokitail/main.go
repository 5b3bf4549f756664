package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-logr/stdr"

	lokilog "github.com/GreyZmeem/go-logging-loki"
	"github.com/GreyZmeem/go-logging-loki/internal/tailer"
)

func main() {
	logger := stdr.New(log.New(os.Stderr, "", log.LstdFlags))
	stdr.SetVerbosity(getEnvAsInt("LOG_VERBOSITY", 0))

	config := getConfig()

	handler, err := lokilog.NewQueueHandler(lokilog.Config{
		URL:           config.LokiURL,
		Tags:          map[string]any{"job": config.Job},
		TenantID:      config.TenantID,
		Auth:          config.Auth,
		Version:       config.EmitterVersion,
		BatchSize:     config.BatchSize,
		FlushInterval: config.FlushInterval,
		QueueSize:     config.QueueSize,
		Timeout:       config.PushTimeout,
		EnableGzip:    config.EnableGzip,
		Logger:        logger.WithName("lokilog"),
	})
	if err != nil {
		logger.Error(err, "invalid handler configuration")
		os.Exit(1)
	}

	shipper := tailer.New(context.Background(), tailer.Config{
		LogRoot:       config.LogRoot,
		ScanInterval:  config.ScanInterval,
		Workers:       config.Workers,
		FileQueueSize: config.FileQueueSize,
		NodeName:      config.NodeName,
		IdleTimeout:   config.FileIdleTimeout,
	}, handler, logger.WithName("tailer"))

	shipper.Start()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	<-signalChan
	logger.Info("received shutdown signal")

	// Stop producing before flushing what is left in the handler.
	shipper.Stop()
	if err := handler.Close(); err != nil {
		logger.Error(err, "failed to close handler")
	}
	logger.Info("shut down", "dropped_records", handler.Dropped())
}

// ------------------------------------  code for reading config -----------------------------------------------------

type AppConfig struct {
	LokiURL         string
	TenantID        string
	Auth            *lokilog.BasicAuth
	EmitterVersion  string
	Job             string
	LogRoot         string
	NodeName        string
	BatchSize       int
	FlushInterval   time.Duration
	QueueSize       int
	PushTimeout     time.Duration
	EnableGzip      bool
	Workers         int
	FileQueueSize   int
	ScanInterval    time.Duration
	FileIdleTimeout time.Duration
}

func getConfig() AppConfig {
	config := AppConfig{
		LokiURL:         getEnv("LOKI_URL", "http://loki:3100/loki/api/v1/push"),
		TenantID:        getEnv("LOKI_TENANT_ID", ""),
		EmitterVersion:  getEnv("EMITTER_VERSION", "1"),
		Job:             getEnv("JOB_NAME", "lokitail"),
		LogRoot:         getEnv("LOG_PATH", "/var/log"),
		NodeName:        getEnv("NODE_NAME", "unknown"),
		BatchSize:       getEnvAsInt("BATCH_SIZE", 100),
		FlushInterval:   getEnvAsDuration("FLUSH_INTERVAL", 5*time.Second),
		QueueSize:       getEnvAsInt("QUEUE_SIZE", 10000),
		PushTimeout:     getEnvAsDuration("PUSH_TIMEOUT", 5*time.Second),
		EnableGzip:      getEnvAsBool("ENABLE_GZIP", false),
		Workers:         getEnvAsInt("WORKERS", 4),
		FileQueueSize:   getEnvAsInt("FILE_QUEUE_SIZE", 50),
		ScanInterval:    getEnvAsDuration("SCAN_INTERVAL", 30*time.Second),
		FileIdleTimeout: getEnvAsDuration("FILE_IDLE_TIMEOUT", 5*time.Minute),
	}

	if user := getEnv("LOKI_USERNAME", ""); user != "" {
		config.Auth = &lokilog.BasicAuth{
			Username: user,
			Password: getEnv("LOKI_PASSWORD", ""),
		}
	}

	return config
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.ParseBool(value); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if result, err := time.ParseDuration(value); err == nil {
			return result
		}
	}
	return defaultValue
}
