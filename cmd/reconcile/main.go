package main

// One-shot reconciliation runner for cron-style deployments and manual
// operator use. It runs a single pass and exits non-zero when the pass could
// not start.

import (
	"context"
	"os"
	"time"

	"github.com/karteai/billing/internal/app/service/notifier"
	"github.com/karteai/billing/internal/app/service/reconciler"
	"github.com/karteai/billing/internal/app/service/statistics"
	"github.com/karteai/billing/internal/app/service/subscription"
	"github.com/karteai/billing/internal/platform/db"
	"github.com/karteai/billing/internal/platform/processor"
	cfgpkg "github.com/karteai/billing/pkg/config"
	"github.com/karteai/billing/pkg/logger"
)

func main() {
	log, err := logger.New()
	if err != nil {
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	cfg, err := cfgpkg.New()
	if err != nil {
		log.Errorf("failed to load config: %v", err)
		os.Exit(1)
	}

	gormDB, err := db.NewDB(log, cfg)
	if err != nil {
		log.Errorf("failed to open database: %v", err)
		os.Exit(1)
	}

	proc, err := processor.NewClient(cfg, log)
	if err != nil {
		log.Errorf("failed to build processor client: %v", err)
		os.Exit(1)
	}

	store := subscription.NewService(cfg, gormDB, log)
	stats := statistics.New(gormDB, log)
	mail := notifier.New(cfg, log)
	svc := reconciler.NewService(proc, store, mail, stats, cfg, log)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	runStats, err := svc.Run(ctx)
	if err != nil {
		log.Errorf("reconciliation failed: %v", err)
		os.Exit(1)
	}
	if err := svc.RunDaily(ctx); err != nil {
		log.Errorw("daily jobs failed", "error", err)
		os.Exit(1)
	}

	log.Infow("reconcile pass complete",
		"seen", runStats.Seen, "updated", runStats.Updated,
		"skipped", runStats.Skipped, "errors", runStats.Errors)
}
