// Package main is the entry point of bimstream: it streams building models
// into the render layer headless or in a window, or serves a scene to other
// instances over websocket.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/Faultbox/bimstream/internal/config"
	"github.com/Faultbox/bimstream/internal/logger"
	"github.com/Faultbox/bimstream/internal/stream"
)

func main() {
	config.ParseFlags()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	if target := config.WriteConfigTarget(); target != "" {
		path, err := cfg.Write(target)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Config write error: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Config written to %s\n", path)
		return
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile, cfg.Logging.Format); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("=== bimstream ===")
	logger.Sugar.Debugf("Config: %+v", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error("bimstream failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	if cfg.Stream.Listen != "" {
		return serve(ctx, cfg)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	msgs := make(chan stream.Message, 256)
	produced := make(chan error, 1)
	go func() {
		produced <- produce(ctx, cfg, msgs)
	}()

	if config.ViewerEnabled() {
		return view(ctx, cfg, msgs, produced)
	}
	return headless(cfg, msgs, produced)
}
