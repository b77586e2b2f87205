package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/karteai/billing/pkg/types"
)

// SubscriptionChangeLog is an append-only before/after trail of record writes.
type SubscriptionChangeLog struct {
	ID        string                                  `gorm:"column:id;type:uuid;primary_key" json:"id"`
	RowKey    string                                  `gorm:"column:row_key;type:varchar(512);not null;index" json:"row_key"`
	Email     string                                  `gorm:"column:email;type:varchar(320);not null" json:"email"`
	Reason    types.SubscriptionChangeReason          `gorm:"column:reason;type:varchar(32);not null" json:"reason"`
	Before    datatypes.JSONType[*SubscriptionRecord] `gorm:"column:before;type:jsonb" json:"before"`
	After     datatypes.JSONType[*SubscriptionRecord] `gorm:"column:after;type:jsonb" json:"after"`
	Extra     datatypes.JSONMap                       `gorm:"column:extra;type:jsonb" json:"extra"`
	CreatedAt time.Time                               `json:"created_at"`
}

func (SubscriptionChangeLog) TableName() string {
	return "subscription_change_log"
}
