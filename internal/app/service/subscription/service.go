package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/karteai/billing/internal/models"
	cfgpkg "github.com/karteai/billing/pkg/config"
	"github.com/karteai/billing/pkg/logctx"
	"github.com/karteai/billing/pkg/tool"
	"github.com/karteai/billing/pkg/types"
)

// Service is the gorm-backed Store. Records are never hard-deleted; a
// canceled subscription stays queryable with status=canceled.
type Service struct {
	cfg *cfgpkg.Config
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewService(cfg *cfgpkg.Config, db *gorm.DB, log *zap.SugaredLogger) *Service {
	return &Service{cfg: cfg, db: db, log: log}
}

func (s *Service) Get(ctx context.Context, email string) (*models.SubscriptionRecord, error) {
	var rec models.SubscriptionRecord
	err := s.db.WithContext(ctx).
		Where("row_key = ?", tool.EmailRowKey(email)).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get subscription record: %w", err)
	}
	return &rec, nil
}

func (s *Service) Upsert(ctx context.Context, upd *RecordUpdate) (*models.SubscriptionRecord, *models.SubscriptionRecord, error) {
	email := tool.NormalizeEmail(upd.Email)
	if email == "" {
		return nil, nil, fmt.Errorf("upsert requires an email")
	}
	rowKey := tool.EmailRowKey(email)

	var before *models.SubscriptionRecord
	var after models.SubscriptionRecord

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var original models.SubscriptionRecord
		err := tx.Where("row_key = ?", rowKey).First(&original).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to load original record: %w", err)
		}

		if err == nil {
			cp := original
			before = &cp
			after = original
		} else {
			after = models.SubscriptionRecord{RowKey: rowKey, Email: email}
		}

		applyUpdate(&after, upd, time.Now())

		if err := tx.Save(&after).Error; err != nil {
			return fmt.Errorf("failed to upsert record: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	logctx.FromCtx(ctx, s.log).Infow("subscription record upserted",
		"email", email, "status", after.Status, "reason", upd.Reason, "synced", upd.Synced)

	// Write change log asynchronously; errors are logged but not returned.
	go s.saveChangeLog(ctx, before, &after, upd.Reason)

	cp := after
	return before, &cp, nil
}

func (s *Service) saveChangeLog(ctx context.Context, before, after *models.SubscriptionRecord, reason types.SubscriptionChangeReason) {
	entry := &models.SubscriptionChangeLog{
		ID:     tool.GenerateUUIDV7(),
		RowKey: after.RowKey,
		Email:  after.Email,
		Reason: reason,
		Before: datatypes.NewJSONType(before),
		After:  datatypes.NewJSONType(after),
		Extra:  datatypes.JSONMap{},
	}
	if err := s.db.Save(entry).Error; err != nil {
		logctx.FromCtx(ctx, s.log).Errorf("failed to save subscription change log: %v", err)
	}
}

func (s *Service) MarkCancelNoticeSent(ctx context.Context, email string, at time.Time) error {
	return s.markSent(ctx, email, "cancel_notice_sent_at", at)
}

func (s *Service) MarkTrialWarningSent(ctx context.Context, email string, at time.Time) error {
	return s.markSent(ctx, email, "trial_warning_sent_at", at)
}

func (s *Service) markSent(ctx context.Context, email, column string, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&models.SubscriptionRecord{}).
		Where("row_key = ?", tool.EmailRowKey(email)).
		Update(column, at)
	if res.Error != nil {
		return fmt.Errorf("failed to update %s: %w", column, res.Error)
	}
	return nil
}

func (s *Service) ListTrialWarningDue(ctx context.Context, cutoffDate string) ([]*models.SubscriptionRecord, error) {
	var recs []*models.SubscriptionRecord
	err := s.db.WithContext(ctx).
		Where("status = ?", types.SubscriptionStatusTrialing).
		Where("trial_warning_sent_at IS NULL").
		Where("created_date != '' AND created_date <= ?", cutoffDate).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list trial-warning candidates: %w", err)
	}
	return recs, nil
}

// Scan request/response for the admin listing surface.
type ScanRecordsRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	From      int                   `json:"from"`
	Size      int                   `json:"size"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

type ScanRecordsResponse struct {
	Items []*models.SubscriptionRecord `json:"items"`
	Total int64                        `json:"total"`
}

// filtersAnd combines multiple CommonFilter into a single clause.Expression.
type filtersAnd struct{ filters []*types.CommonFilter }

func (w filtersAnd) Build(builder clause.Builder) {
	if len(w.filters) == 0 {
		builder.WriteString("1=1")
		return
	}
	exprs := make([]clause.Expression, 0, len(w.filters))
	for _, f := range w.filters {
		exprs = append(exprs, f)
	}
	clause.And(exprs...).Build(builder)
}

// ScanRecords implements paginated/admin listing with filters.
func (s *Service) ScanRecords(ctx context.Context, req *ScanRecordsRequest) (*ScanRecordsResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	if req.Size <= 0 {
		req.Size = 10
	}
	if req.From < 0 {
		req.From = 0
	}

	tx := s.db.WithContext(ctx).Model(&models.SubscriptionRecord{})
	if len(req.Filters) > 0 {
		tx = tx.Where(clause.Where{Exprs: []clause.Expression{filtersAnd{filters: req.Filters}}})
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}

	var rows []*models.SubscriptionRecord
	q := tx.Limit(req.Size)
	if req.From > 0 {
		q = q.Offset(req.From)
	}
	if req.SortBy != "" {
		q = q.Order(clause.OrderBy{Columns: []clause.OrderByColumn{{Column: clause.Column{Name: req.SortBy}, Desc: req.SortOrder != "asc"}}})
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	return &ScanRecordsResponse{Items: rows, Total: total}, nil
}
