package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/nidhogg/brainstorm/internal/app"
	"github.com/nidhogg/brainstorm/internal/brainstorm"
	"github.com/nidhogg/brainstorm/internal/collect"
	"github.com/nidhogg/brainstorm/internal/config"
	"github.com/nidhogg/brainstorm/internal/console"
	"github.com/nidhogg/brainstorm/internal/logging"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfgPath := flag.String("config", envOr("CONFIG_PATH", "configs/brainstorm.json"), "path to the JSON config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
	defer a.Close()

	// After the first signal the deletion prompt still needs input; a second
	// signal kills the process.
	go func() {
		<-ctx.Done()
		stop()
	}()

	runner := brainstorm.NewRunner(a.Engine, collect.NewLines(os.Stdin), console.NewView(os.Stdout), logger)
	res, err := runner.Run(ctx)
	if err != nil {
		logger.Error("session did not start", zap.Error(err))
		a.Close()
		os.Exit(1)
	}
	logger.Info("run finished", zap.String("session", res.SessionID), zap.String("state", string(res.Final)))
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
