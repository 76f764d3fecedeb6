package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	appcfg "github.com/park285/sudoku-duo/internal/config"
	"github.com/park285/sudoku-duo/internal/matchstore"
	"github.com/park285/sudoku-duo/internal/metrics"
	"github.com/park285/sudoku-duo/internal/obslog"
	"github.com/park285/sudoku-duo/internal/reaper"
	"go.uber.org/zap"
)

func main() {
	once := flag.Bool("once", false, "run a single sweep and exit")
	flag.Parse()

	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv("duo-reaper"); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	store, err := matchstore.Open(openCtx, cfg.RedisURL)
	cancel()
	if err != nil {
		obslog.L().Fatal("reaper_store_error", zap.Error(err))
	}
	defer store.Close()

	r := reaper.New(store, reaper.Config{
		Interval:     cfg.Reaper.Interval,
		BatchLimit:   cfg.Reaper.BatchLimit,
		LobbyTimeout: cfg.Reaper.LobbyTimeout,
		Retention:    cfg.Reaper.Retention,
	}, reaper.WithMetrics(metrics.New()))

	if *once {
		report := r.RunOnce(ctx)
		if report.Failed() {
			obslog.Sync()
			os.Exit(1)
		}
		return
	}

	r.Start(ctx)
	<-ctx.Done()
	r.Stop()
}
