package subscription

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/karteai/billing/internal/models"
	"github.com/karteai/billing/pkg/types"
)

func TestIsActive(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(72 * time.Hour)
	past := now.Add(-72 * time.Hour)

	cases := []struct {
		name   string
		rec    *models.SubscriptionRecord
		expect bool
	}{
		{"nil record denies", nil, false},
		{"active", &models.SubscriptionRecord{Status: types.SubscriptionStatusActive}, true},
		{"trialing", &models.SubscriptionRecord{Status: types.SubscriptionStatusTrialing}, true},
		{"active without period end still active", &models.SubscriptionRecord{Status: types.SubscriptionStatusActive}, true},
		{"canceled with future period end keeps grace access", &models.SubscriptionRecord{Status: types.SubscriptionStatusCanceled, CurrentPeriodEnd: &future}, true},
		{"canceled with past period end", &models.SubscriptionRecord{Status: types.SubscriptionStatusCanceled, CurrentPeriodEnd: &past}, false},
		{"canceled without period end", &models.SubscriptionRecord{Status: types.SubscriptionStatusCanceled}, false},
		{"past_due with future period end keeps grace access", &models.SubscriptionRecord{Status: types.SubscriptionStatusPastDue, CurrentPeriodEnd: &future}, true},
		{"past_due with past period end", &models.SubscriptionRecord{Status: types.SubscriptionStatusPastDue, CurrentPeriodEnd: &past}, false},
		{"inactive", &models.SubscriptionRecord{Status: types.SubscriptionStatusInactive, CurrentPeriodEnd: &future}, false},
		{"period end exactly now is expired", &models.SubscriptionRecord{Status: types.SubscriptionStatusCanceled, CurrentPeriodEnd: &now}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expect, IsActive(tc.rec, now))
		})
	}
}

func TestInfo_AbsentRecord(t *testing.T) {
	info := Info(nil, time.Now())
	require.False(t, info.Active)
	require.Equal(t, "inactive", info.Status)
	require.Nil(t, info.Expiry)
}

func TestInfo_CanceledInGrace(t *testing.T) {
	end := time.Now().Add(48 * time.Hour)
	info := Info(&models.SubscriptionRecord{
		Status:           types.SubscriptionStatusCanceled,
		CurrentPeriodEnd: &end,
	}, time.Now())
	require.True(t, info.Active)
	require.Equal(t, "canceled", info.Status)
	require.Equal(t, end, *info.Expiry)
}
