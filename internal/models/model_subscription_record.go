package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/karteai/billing/pkg/types"
)

// SubscriptionRecord mirrors the payment processor's subscription object for
// one customer email. It is a cache with an explicit staleness bound enforced
// by the reconciliation job; the processor stays the source of truth.
type SubscriptionRecord struct {
	// RowKey is base64(normalized email). Lookups address rows this way in the
	// existing store, so the encoding must not change.
	RowKey string                   `gorm:"column:row_key;type:varchar(512);primary_key" json:"row_key"`
	Email  string                   `gorm:"column:email;type:varchar(320);not null;uniqueIndex" json:"email"`
	Status types.SubscriptionStatus `gorm:"column:status;type:varchar(32);not null" json:"status"`
	// TrialEnd is set while the processor reports a trial.
	TrialEnd *time.Time `gorm:"column:trial_end;default:null" json:"trial_end"`
	// CurrentPeriodEnd marks the end of the currently paid-for or trialed
	// interval; canceled/past_due records keep access until it passes.
	CurrentPeriodEnd  *time.Time `gorm:"column:current_period_end;default:null" json:"current_period_end"`
	CancelAtPeriodEnd bool       `gorm:"column:cancel_at_period_end;not null;default:false" json:"cancel_at_period_end"`
	CanceledAt        *time.Time `gorm:"column:canceled_at;default:null" json:"canceled_at"`

	ProcessorCustomerID     string `gorm:"column:processor_customer_id;type:varchar(128)" json:"processor_customer_id"`
	ProcessorSubscriptionID string `gorm:"column:processor_subscription_id;type:varchar(128)" json:"processor_subscription_id"`

	// LastSyncedAt is stamped only by reconciliation writes, never by webhook
	// writes, so staleness can be audited.
	LastSyncedAt *time.Time `gorm:"column:last_synced_at;default:null" json:"last_synced_at"`
	// CreatedDate is the calendar date (YYYY-MM-DD) of subscription creation,
	// used only to schedule the one-time trial-warning mail.
	CreatedDate string `gorm:"column:created_date;type:varchar(10)" json:"created_date"`

	// Notification dedup guards.
	CancelNoticeSentAt *time.Time `gorm:"column:cancel_notice_sent_at;default:null" json:"cancel_notice_sent_at"`
	TrialWarningSentAt *time.Time `gorm:"column:trial_warning_sent_at;default:null" json:"trial_warning_sent_at"`

	Extra datatypes.JSON `gorm:"column:extra;type:jsonb;default:'{}'" json:"extra"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (SubscriptionRecord) TableName() string {
	return "subscription_record"
}
