package main

import (
	"context"
	"flag"

	"sms-relay-server/internal/config"
	"sms-relay-server/internal/metrics"
	"sms-relay-server/pkg/logger"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "absolute path to the JSON config file")
	flag.Parse()

	// Defaults, then config file if given, env overrides last.
	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.LoadConfig(*configPath)
		if err != nil {
			panic(err)
		}
		cfg = loaded
	} else if err := config.ApplyEnv(context.Background(), cfg); err != nil {
		panic(err)
	}

	if err := logger.Init(cfg.Logging.Path, cfg.Logging.Level); err != nil {
		panic(err)
	}
	defer logger.Info("Server shutting down")

	metrics.Register()

	srv, err := SetupServer(cfg)
	if err != nil {
		logger.Fatal("Failed to setup server", zap.Error(err))
	}

	if err := StartServer(srv); err != nil {
		logger.Fatal("Server error", zap.Error(err))
	}
}
