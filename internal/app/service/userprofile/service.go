package userprofile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/karteai/billing/internal/models"
	"github.com/karteai/billing/pkg/logctx"
	"github.com/karteai/billing/pkg/tool"
)

// Store holds per-email profile records. Writes are merge-upserts: only the
// fields a caller sets are overwritten, last write wins.
type Store interface {
	Get(ctx context.Context, email string) (*models.UserRecord, error)
	MergeUpsert(ctx context.Context, upd *ProfileUpdate) (*models.UserRecord, error)
	SetCancelOTP(ctx context.Context, email, token string, at time.Time) error
	ClearCancelOTP(ctx context.Context, email string) error
}

// ProfileUpdate carries the fields to merge; nil pointers leave the stored
// value untouched.
type ProfileUpdate struct {
	Email            string
	Name             *string
	Facility         *string
	MarketingConsent *bool
	TermsAcceptedAt  *time.Time
}

type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewService(db *gorm.DB, log *zap.SugaredLogger) *Service {
	return &Service{db: db, log: log}
}

func (s *Service) Get(ctx context.Context, email string) (*models.UserRecord, error) {
	var rec models.UserRecord
	err := s.db.WithContext(ctx).Where("row_key = ?", tool.EmailRowKey(email)).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user record: %w", err)
	}
	return &rec, nil
}

func (s *Service) MergeUpsert(ctx context.Context, upd *ProfileUpdate) (*models.UserRecord, error) {
	email := tool.NormalizeEmail(upd.Email)
	if email == "" {
		return nil, fmt.Errorf("merge upsert requires an email")
	}
	rowKey := tool.EmailRowKey(email)

	var rec models.UserRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("row_key = ?", rowKey).First(&rec).Error
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("failed to load user record: %w", err)
			}
			rec = models.UserRecord{RowKey: rowKey, Email: email}
		}
		mergeProfile(&rec, upd)
		if err := tx.Save(&rec).Error; err != nil {
			return fmt.Errorf("failed to upsert user record: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logctx.FromCtx(ctx, s.log).Infow("user record upserted", "email", email)
	return &rec, nil
}

func (s *Service) SetCancelOTP(ctx context.Context, email, token string, at time.Time) error {
	// Make sure a record exists so the token has somewhere to live.
	if _, err := s.MergeUpsert(ctx, &ProfileUpdate{Email: email}); err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&models.UserRecord{}).
		Where("row_key = ?", tool.EmailRowKey(email)).
		Updates(map[string]any{"cancel_otp_token": token, "cancel_otp_issued_at": at})
	if res.Error != nil {
		return fmt.Errorf("failed to store cancellation otp: %w", res.Error)
	}
	return nil
}

func (s *Service) ClearCancelOTP(ctx context.Context, email string) error {
	res := s.db.WithContext(ctx).Model(&models.UserRecord{}).
		Where("row_key = ?", tool.EmailRowKey(email)).
		Updates(map[string]any{"cancel_otp_token": "", "cancel_otp_issued_at": nil})
	if res.Error != nil {
		return fmt.Errorf("failed to clear cancellation otp: %w", res.Error)
	}
	return nil
}

func mergeProfile(rec *models.UserRecord, upd *ProfileUpdate) {
	if upd.Name != nil {
		rec.Name = *upd.Name
	}
	if upd.Facility != nil {
		rec.Facility = *upd.Facility
	}
	if upd.MarketingConsent != nil {
		rec.MarketingConsent = upd.MarketingConsent
	}
	if upd.TermsAcceptedAt != nil {
		rec.TermsAcceptedAt = upd.TermsAcceptedAt
	}
}

var Module = fx.Options(
	fx.Provide(NewService),
	fx.Provide(func(s *Service) Store { return s }),
	fx.Provide(NewCancellation),
)
