package subscription

import (
	"time"

	"github.com/karteai/billing/internal/models"
	"github.com/karteai/billing/pkg/types"
)

// IsActive is the single access decision used by every protected path.
// A record grants access while its status is active or trialing, or — as a
// grace period — while a canceled or past_due record's paid interval has not
// ended. An absent record denies.
func IsActive(rec *models.SubscriptionRecord, now time.Time) bool {
	if rec == nil {
		return false
	}
	switch rec.Status {
	case types.SubscriptionStatusActive, types.SubscriptionStatusTrialing:
		return true
	case types.SubscriptionStatusCanceled, types.SubscriptionStatusPastDue:
		return rec.CurrentPeriodEnd != nil && rec.CurrentPeriodEnd.After(now)
	default:
		return false
	}
}

// Info builds the access-check payload for a record, which may be nil.
func Info(rec *models.SubscriptionRecord, now time.Time) *types.SubscriptionInfo {
	info := &types.SubscriptionInfo{
		Active: IsActive(rec, now),
		Status: string(types.SubscriptionStatusInactive),
	}
	if rec != nil {
		info.Status = string(rec.Status)
		info.Expiry = rec.CurrentPeriodEnd
	}
	return info
}
