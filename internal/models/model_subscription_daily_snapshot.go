package models

import (
	"time"

	"github.com/karteai/billing/pkg/types"
)

// SubscriptionDailySnapshot is a once-per-day copy of a record's billing
// state, kept for the admin statistics queries.
type SubscriptionDailySnapshot struct {
	ID                string                   `gorm:"column:id;type:uuid;primary_key" json:"id"`
	RowKey            string                   `gorm:"column:row_key;type:varchar(512);not null;uniqueIndex:idx_row_key_snapshot_date,priority:1" json:"row_key"`
	Email             string                   `gorm:"column:email;type:varchar(320);not null" json:"email"`
	Status            types.SubscriptionStatus `gorm:"column:status;type:varchar(32);not null" json:"status"`
	CurrentPeriodEnd  *time.Time               `gorm:"column:current_period_end;default:null" json:"current_period_end"`
	CancelAtPeriodEnd bool                     `gorm:"column:cancel_at_period_end;not null;default:false" json:"cancel_at_period_end"`
	SnapshotDate      string                   `gorm:"column:snapshot_date;uniqueIndex:idx_row_key_snapshot_date,priority:2" json:"snapshot_date"`
	SnapshotCreatedAt time.Time                `gorm:"column:snapshot_created_at" json:"snapshot_created_at"`
}

func (SubscriptionDailySnapshot) TableName() string {
	return "subscription_daily_snapshot"
}
