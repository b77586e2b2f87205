package subscription

import (
	"context"
	"time"

	"github.com/karteai/billing/internal/models"
	"github.com/karteai/billing/internal/platform/processor"
	"github.com/karteai/billing/pkg/tool"
	"github.com/karteai/billing/pkg/types"
)

// Store is the subscription record store. Implementations guarantee per-key
// atomic upserts with last-write-wins semantics; there is no optimistic
// concurrency check, by design — reconciliation converges any race.
type Store interface {
	// Get returns the record for an email, or (nil, nil) when absent.
	Get(ctx context.Context, email string) (*models.SubscriptionRecord, error)
	// Upsert applies a processor-derived update, creating the record when
	// missing, and returns the before/after states.
	Upsert(ctx context.Context, upd *RecordUpdate) (before, after *models.SubscriptionRecord, err error)
	MarkCancelNoticeSent(ctx context.Context, email string, at time.Time) error
	MarkTrialWarningSent(ctx context.Context, email string, at time.Time) error
	// ListTrialWarningDue returns trialing records created on or before the
	// cutoff date (YYYY-MM-DD) that have not been warned yet.
	ListTrialWarningDue(ctx context.Context, cutoffDate string) ([]*models.SubscriptionRecord, error)
}

// RecordUpdate is the full mirrored payload re-derived from the processor's
// subscription object. Upserts overwrite with it unconditionally rather than
// diffing, so webhook and reconciliation writes converge to the same values.
type RecordUpdate struct {
	Email string

	Status            types.SubscriptionStatus
	TrialEnd          *time.Time
	CurrentPeriodEnd  *time.Time
	CancelAtPeriodEnd bool
	CanceledAt        *time.Time

	ProcessorCustomerID     string
	ProcessorSubscriptionID string

	// CreatedDate only takes effect when the record has none yet.
	CreatedDate string
	// Synced marks reconciliation-job writes; only those stamp LastSyncedAt.
	Synced bool

	Reason types.SubscriptionChangeReason
}

// UpdateFromProcessor derives a RecordUpdate from the processor's current
// view of a subscription.
func UpdateFromProcessor(ps *processor.Subscription, reason types.SubscriptionChangeReason, synced bool) *RecordUpdate {
	upd := &RecordUpdate{
		Email:                   tool.NormalizeEmail(ps.CustomerEmail),
		Status:                  MapProcessorStatus(ps.Status),
		TrialEnd:                ps.TrialEnd,
		CurrentPeriodEnd:        ps.CurrentPeriodEnd,
		CancelAtPeriodEnd:       ps.CancelAtPeriodEnd,
		CanceledAt:              ps.CanceledAt,
		ProcessorCustomerID:     ps.CustomerID,
		ProcessorSubscriptionID: ps.ID,
		Synced:                  synced,
		Reason:                  reason,
	}
	if ps.CreatedAt != nil {
		upd.CreatedDate = ps.CreatedAt.Format(time.DateOnly)
	}
	return upd
}

// MapProcessorStatus folds processor statuses onto the stored vocabulary.
// Statuses outside it (incomplete, unpaid, paused, ...) carry no access and
// are stored as inactive.
func MapProcessorStatus(s string) types.SubscriptionStatus {
	switch types.SubscriptionStatus(s) {
	case types.SubscriptionStatusTrialing,
		types.SubscriptionStatusActive,
		types.SubscriptionStatusPastDue,
		types.SubscriptionStatusCanceled:
		return types.SubscriptionStatus(s)
	default:
		return types.SubscriptionStatusInactive
	}
}

// applyUpdate writes upd onto rec. Shared by every Store implementation so
// upsert semantics cannot drift between them.
func applyUpdate(rec *models.SubscriptionRecord, upd *RecordUpdate, now time.Time) {
	rec.Status = upd.Status
	rec.TrialEnd = upd.TrialEnd
	rec.CurrentPeriodEnd = upd.CurrentPeriodEnd
	rec.CancelAtPeriodEnd = upd.CancelAtPeriodEnd
	rec.CanceledAt = upd.CanceledAt

	if upd.ProcessorCustomerID != "" {
		rec.ProcessorCustomerID = upd.ProcessorCustomerID
	}
	if upd.ProcessorSubscriptionID != "" {
		rec.ProcessorSubscriptionID = upd.ProcessorSubscriptionID
	}
	if rec.CreatedDate == "" && upd.CreatedDate != "" {
		rec.CreatedDate = upd.CreatedDate
	}

	// A cancellation that is no longer scheduled re-arms the notice guard.
	if !upd.CancelAtPeriodEnd {
		rec.CancelNoticeSentAt = nil
	}

	if upd.Synced {
		t := now
		rec.LastSyncedAt = &t
	}
}
