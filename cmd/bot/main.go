// cmd/bot/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/sagecry/sagebot/internal/bot"
	"github.com/sagecry/sagebot/internal/config"
	"github.com/sagecry/sagebot/internal/logger"
)

func main() {
	configPath := flag.String("config", "configs/config.json", "path to the session configuration file")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logCfg := logger.DefaultConfig()
	logCfg.LogFile = cfg.LogFile
	logCfg.Development = cfg.DebugLogging
	log, err := logger.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync(log)

	log.Info("Starting trading bot",
		zap.String("mode", cfg.Mode),
		zap.Duration("tick_interval", cfg.TickInterval))

	runner := bot.NewRunner(cfg, log)
	if err := runner.Run(ctx); err != nil {
		log.Error("Session failed", zap.Error(err))
		logger.Sync(log)
		os.Exit(1)
	}

	log.Info("Trading bot exited")
}
