package reconciler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/karteai/billing/internal/app/service/notifier"
	"github.com/karteai/billing/internal/app/service/statistics"
	"github.com/karteai/billing/internal/app/service/subscription"
	"github.com/karteai/billing/internal/platform/processor"
	cfgpkg "github.com/karteai/billing/pkg/config"
	"github.com/karteai/billing/pkg/logctx"
	"github.com/karteai/billing/pkg/metrics"
	"github.com/karteai/billing/pkg/types"
)

// Snapshotter is the slice of the statistics service the daily job needs.
type Snapshotter interface {
	SaveDailySnapshots(ctx context.Context, snapshotDate time.Time) (int, error)
}

// Service walks the processor's full subscription list and overwrites the
// local records with whatever the processor reports. Webhooks keep the store
// fresh; this job keeps it honest.
type Service struct {
	proc     processor.Client
	store    subscription.Store
	notifier notifier.Notifier
	snaps    Snapshotter
	cfg      *cfgpkg.Config
	log      *zap.SugaredLogger

	now func() time.Time
}

func NewService(proc processor.Client, store subscription.Store, n notifier.Notifier, snaps Snapshotter, cfg *cfgpkg.Config, log *zap.SugaredLogger) *Service {
	return &Service{proc: proc, store: store, notifier: n, snaps: snaps, cfg: cfg, log: log, now: time.Now}
}

// RunStats summarizes one reconciliation pass.
type RunStats struct {
	Seen    int `json:"seen"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

// Run reconciles every processor subscription into the record store. A
// failure before anything was listed aborts the run; failures later in the
// walk are counted per item and the rest of the pass continues.
func (s *Service) Run(ctx context.Context) (*RunStats, error) {
	log := logctx.FromCtx(ctx, s.log)
	log.Infow("reconciliation started")
	start := s.now()
	stats := &RunStats{}

	seen, listErr := s.proc.ListSubscriptions(ctx, func(ps *processor.Subscription) error {
		stats.Seen++
		if err := s.reconcileOne(ctx, ps, stats); err != nil {
			stats.Errors++
			metrics.ReconcileItemsTotal.WithLabelValues("error").Inc()
			log.Errorw("failed to reconcile subscription", "subscription_id", ps.ID, "error", err)
		}
		return nil
	})
	if listErr != nil && seen == 0 {
		metrics.ReconcileRunsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("subscription listing failed before any page: %w", listErr)
	}
	if listErr != nil {
		// Listing broke mid-walk: keep what was applied, flag the run.
		stats.Errors++
		log.Errorw("subscription listing stopped early", "seen", seen, "error", listErr)
	}

	outcome := "ok"
	if stats.Errors > 0 {
		outcome = "partial"
	}
	metrics.ReconcileRunsTotal.WithLabelValues(outcome).Inc()
	log.Infow("reconciliation finished",
		"seen", stats.Seen, "updated", stats.Updated, "skipped", stats.Skipped,
		"errors", stats.Errors, "elapsed", s.now().Sub(start).String())
	return stats, nil
}

func (s *Service) reconcileOne(ctx context.Context, ps *processor.Subscription, stats *RunStats) error {
	email := ps.CustomerEmail
	if email == "" {
		var err error
		email, err = s.proc.GetCustomerEmail(ctx, ps.CustomerID)
		if err != nil {
			return fmt.Errorf("resolve customer %s: %w", ps.CustomerID, err)
		}
	}
	if email == "" {
		stats.Skipped++
		metrics.ReconcileItemsTotal.WithLabelValues("skipped").Inc()
		logctx.FromCtx(ctx, s.log).Warnw("subscription has no customer email, skipping",
			"subscription_id", ps.ID, "customer_id", ps.CustomerID)
		return nil
	}

	upd := subscription.UpdateFromProcessor(ps, types.SubscriptionChangeReasonReconcile, true)
	upd.Email = email
	if _, _, err := s.store.Upsert(ctx, upd); err != nil {
		return err
	}
	stats.Updated++
	metrics.ReconcileItemsTotal.WithLabelValues("updated").Inc()
	return nil
}

// RunTrialWarnings mails everyone whose trial has been running long enough
// that it is about to convert, once per record.
func (s *Service) RunTrialWarnings(ctx context.Context) (int, error) {
	log := logctx.FromCtx(ctx, s.log)
	cutoff := s.now().AddDate(0, 0, -s.cfg.Trial.WarnAfterDays).Format(time.DateOnly)

	due, err := s.store.ListTrialWarningDue(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list trial warnings due: %w", err)
	}

	sent := 0
	for _, rec := range due {
		if res := s.notifier.SendTrialWarning(ctx, rec.Email, rec.TrialEnd); res.Suppressed() {
			log.Warnw("trial warning not delivered", "email", rec.Email, "error", res.Err)
			continue
		}
		if err := s.store.MarkTrialWarningSent(ctx, rec.Email, s.now()); err != nil {
			log.Errorw("failed to mark trial warning", "email", rec.Email, "error", err)
			continue
		}
		sent++
	}
	log.Infow("trial warnings processed", "due", len(due), "sent", sent)
	return sent, nil
}

// RunDaily performs the once-a-day work: trial warnings plus the statistics
// snapshot.
func (s *Service) RunDaily(ctx context.Context) error {
	if _, err := s.RunTrialWarnings(ctx); err != nil {
		return err
	}
	if _, err := s.snaps.SaveDailySnapshots(ctx, s.now()); err != nil {
		return err
	}
	return nil
}

var _ Snapshotter = (*statistics.Service)(nil)
