package handlers

import (
	"time"

	"github.com/karteai/billing/internal/app/service/reconciler"
	"github.com/karteai/billing/internal/app/service/statistics"
	subsvc "github.com/karteai/billing/internal/app/service/subscription"
	"github.com/karteai/billing/pkg/response"
	"github.com/karteai/billing/pkg/types"
)

// RespOK is a generic OK envelope for endpoints returning no specific data.
type RespOK struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    interface{}              `json:"data"`
}

// RespScanRecords wraps ScanRecordsResponse in the standard envelope.
type RespScanRecords struct {
	Code    response.APIResponseCode   `json:"code"`
	Message string                     `json:"message"`
	Data    subsvc.ScanRecordsResponse `json:"data"`
}

// RespReconcileRun wraps RunStats in the standard envelope.
type RespReconcileRun struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    reconciler.RunStats      `json:"data"`
}

// RespStatistics wraps StatisticResponse in the standard envelope.
type RespStatistics struct {
	Code    response.APIResponseCode     `json:"code"`
	Message string                       `json:"message"`
	Data    statistics.StatisticResponse `json:"data"`
}

// SwaggerSubscriptionRecord is a simplified view of models.SubscriptionRecord
// for documentation purposes.
type SwaggerSubscriptionRecord struct {
	RowKey                  string                   `json:"row_key"`
	Email                   string                   `json:"email"`
	Status                  types.SubscriptionStatus `json:"status"`
	TrialEnd                *time.Time               `json:"trial_end"`
	CurrentPeriodEnd        *time.Time               `json:"current_period_end"`
	CancelAtPeriodEnd       bool                     `json:"cancel_at_period_end"`
	CanceledAt              *time.Time               `json:"canceled_at"`
	ProcessorCustomerID     string                   `json:"processor_customer_id"`
	ProcessorSubscriptionID string                   `json:"processor_subscription_id"`
	LastSyncedAt            *time.Time               `json:"last_synced_at"`
	CreatedDate             string                   `json:"created_date"`
	CreatedAt               time.Time                `json:"created_at"`
	UpdatedAt               time.Time                `json:"updated_at"`
}
