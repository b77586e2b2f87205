package models

import (
	"time"

	"gorm.io/datatypes"
)

type WebhookEventLogStatus string

const (
	WebhookEventLogStatusReceived     WebhookEventLogStatus = "received"
	WebhookEventLogStatusHandled      WebhookEventLogStatus = "handled"
	WebhookEventLogStatusHandleFailed WebhookEventLogStatus = "handle_failed"
)

type WebhookEventLog struct {
	ID string `gorm:"column:id;type:uuid;primary_key" json:"id"`
	// ProviderEventID is the processor-assigned event id; retries reuse it.
	ProviderEventID string                `gorm:"column:provider_event_id;type:varchar(128);index" json:"provider_event_id"`
	EventType       string                `gorm:"column:event_type;type:varchar(128);not null" json:"event_type"`
	Email           *string               `gorm:"column:email;type:varchar(320)" json:"email"`
	TraceID         string                `gorm:"column:trace_id;type:varchar(128)" json:"trace_id"`
	EventTime       time.Time             `gorm:"column:event_time" json:"event_time"`
	Data            datatypes.JSON        `gorm:"column:data;type:jsonb" json:"data"`
	Result          *datatypes.JSON       `gorm:"column:result;type:jsonb" json:"result"`
	Status          WebhookEventLogStatus `gorm:"column:status;type:varchar(32);not null" json:"status"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

func (WebhookEventLog) TableName() string { return "webhook_event_log" }
