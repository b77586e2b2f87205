package eventlog

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/karteai/billing/internal/models"
	"github.com/karteai/billing/pkg/logctx"
	"github.com/karteai/billing/pkg/tool"
)

// Recorder persists the webhook audit trail. Writes are fire-and-forget;
// losing a log row never fails event handling.
type Recorder interface {
	Save(ctx context.Context, entry *models.WebhookEventLog)
}

type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Service { return &Service{db: db, log: log} }

// Save asynchronously persists a webhook event log entry. Nil input is ignored.
func (s *Service) Save(ctx context.Context, entry *models.WebhookEventLog) {
	go func() {
		if entry == nil {
			return
		}
		if entry.ID == "" {
			entry.ID = tool.GenerateUUIDV7()
		}
		if err := s.db.Save(entry).Error; err != nil {
			logctx.FromCtx(ctx, s.log).Errorf("failed to save webhook event log: %v", err)
		}
	}()
}

// Noop is used by tests and the one-shot reconcile binary.
type Noop struct{}

func (Noop) Save(context.Context, *models.WebhookEventLog) {}

var Module = fx.Options(
	fx.Provide(New),
	fx.Provide(func(s *Service) Recorder { return s }),
)
