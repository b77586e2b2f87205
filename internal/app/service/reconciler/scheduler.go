package reconciler

import (
	"context"
	"fmt"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/karteai/billing/internal/app/service/statistics"
	cfgpkg "github.com/karteai/billing/pkg/config"
)

// Scheduler owns the background jobs: the recurring reconciliation pass and
// the daily trial-warning/snapshot run.
type Scheduler struct {
	scheduler gocron.Scheduler
	svc       *Service
	cfg       *cfgpkg.Config
	log       *zap.SugaredLogger
}

func NewScheduler(svc *Service, cfg *cfgpkg.Config, log *zap.SugaredLogger) (*Scheduler, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	s := &Scheduler{scheduler: scheduler, svc: svc, cfg: cfg, log: log}
	if err := s.registerJobs(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) registerJobs() error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(s.cfg.ReconcileInterval()),
		gocron.NewTask(func() {
			if _, err := s.svc.Run(context.Background()); err != nil {
				s.log.Errorw("reconciliation run failed", "error", err)
			}
		}),
		gocron.WithName("subscription-reconcile"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to register reconcile job: %w", err)
	}

	_, err = s.scheduler.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(uint(s.cfg.Reconcile.DailyJobHour), 0, 0))),
		gocron.NewTask(func() {
			if err := s.svc.RunDaily(context.Background()); err != nil {
				s.log.Errorw("daily billing job failed", "error", err)
			}
		}),
		gocron.WithName("billing-daily"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to register daily job: %w", err)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.log.Infow("background job scheduler started",
		"reconcile_interval", s.cfg.ReconcileInterval().String(),
		"daily_job_hour", s.cfg.Reconcile.DailyJobHour)
	s.scheduler.Start()
}

func (s *Scheduler) Stop() error {
	s.log.Infow("background job scheduler stopping")
	return s.scheduler.Shutdown()
}

func registerSchedulerLifecycle(lc fx.Lifecycle, s *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			s.Start()
			return nil
		},
		OnStop: func(context.Context) error {
			return s.Stop()
		},
	})
}

var Module = fx.Options(
	fx.Provide(func(s *statistics.Service) Snapshotter { return s }),
	fx.Provide(NewService),
	fx.Provide(NewScheduler),
	fx.Invoke(registerSchedulerLifecycle),
)
