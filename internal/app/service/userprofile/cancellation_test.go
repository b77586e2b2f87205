package userprofile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/karteai/billing/internal/app/service/notifier"
	"github.com/karteai/billing/internal/app/service/subscription"
	"github.com/karteai/billing/internal/platform/processor"
	"github.com/karteai/billing/pkg/auth"
	cfgpkg "github.com/karteai/billing/pkg/config"
	"github.com/karteai/billing/pkg/types"
)

type stubProcessor struct {
	processor.Client
	canceled map[string]bool
}

func (s *stubProcessor) SetCancelAtPeriodEnd(_ context.Context, id string, cancel bool) (*processor.Subscription, error) {
	if s.canceled == nil {
		s.canceled = make(map[string]bool)
	}
	s.canceled[id] = cancel
	end := time.Now().Add(20 * 24 * time.Hour)
	return &processor.Subscription{
		ID:                id,
		Status:            "active",
		CancelAtPeriodEnd: cancel,
		CurrentPeriodEnd:  &end,
	}, nil
}

type captureNotifier struct {
	notifier.Notifier
	lastCode string
	fail     bool
}

func (n *captureNotifier) SendCancelOTP(_ context.Context, email, code string) notifier.SendResult {
	res := notifier.SendResult{Kind: notifier.KindCancelOTP, Recipient: email}
	if n.fail {
		res.Err = context.DeadlineExceeded
		return res
	}
	n.lastCode = code
	return res
}

func newTestCancellation(t *testing.T) (*Cancellation, *MemoryStore, *subscription.MemoryStore, *stubProcessor, *captureNotifier) {
	t.Helper()
	maker, err := auth.NewMaker(&cfgpkg.Config{Auth: cfgpkg.AuthConfig{
		SessionSecret:   "test-secret",
		SessionTTLHours: 1,
		OTPTTLMinutes:   10,
	}})
	require.NoError(t, err)

	users := NewMemoryStore()
	subs := subscription.NewMemoryStore()
	proc := &stubProcessor{}
	mail := &captureNotifier{}
	svc := NewCancellation(users, subs, proc, maker, mail, zap.NewNop().Sugar())
	return svc, users, subs, proc, mail
}

func seedSubscription(t *testing.T, subs *subscription.MemoryStore, email string) {
	t.Helper()
	end := time.Now().Add(20 * 24 * time.Hour)
	_, _, err := subs.Upsert(context.Background(), &subscription.RecordUpdate{
		Email:                   email,
		Status:                  types.SubscriptionStatusActive,
		CurrentPeriodEnd:        &end,
		ProcessorSubscriptionID: "sub_123",
		Reason:                  types.SubscriptionChangeReasonCheckout,
	})
	require.NoError(t, err)
}

func TestCancellation_RoundTrip(t *testing.T) {
	svc, users, subs, proc, mail := newTestCancellation(t)
	ctx := context.Background()
	seedSubscription(t, subs, "user@example.com")

	require.NoError(t, svc.Request(ctx, "User@Example.com"))
	require.Len(t, mail.lastCode, 6)

	user, err := users.Get(ctx, "user@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, user.CancelOTPToken)

	require.NoError(t, svc.Confirm(ctx, "user@example.com", mail.lastCode))
	require.True(t, proc.canceled["sub_123"])

	rec, err := subs.Get(ctx, "user@example.com")
	require.NoError(t, err)
	require.True(t, rec.CancelAtPeriodEnd)
	require.Equal(t, types.SubscriptionStatusActive, rec.Status)

	user, err = users.Get(ctx, "user@example.com")
	require.NoError(t, err)
	require.Empty(t, user.CancelOTPToken)
}

func TestCancellation_WrongCodeRejected(t *testing.T) {
	svc, _, subs, proc, _ := newTestCancellation(t)
	ctx := context.Background()
	seedSubscription(t, subs, "user@example.com")

	require.NoError(t, svc.Request(ctx, "user@example.com"))
	require.Error(t, svc.Confirm(ctx, "user@example.com", "000000"))
	require.False(t, proc.canceled["sub_123"])
}

func TestCancellation_NoSubscription(t *testing.T) {
	svc, _, _, _, _ := newTestCancellation(t)
	require.Error(t, svc.Request(context.Background(), "nobody@example.com"))
}

func TestCancellation_ConfirmWithoutRequest(t *testing.T) {
	svc, _, subs, _, _ := newTestCancellation(t)
	ctx := context.Background()
	seedSubscription(t, subs, "user@example.com")
	require.Error(t, svc.Confirm(ctx, "user@example.com", "123456"))
}

func TestCancellation_MailFailureSurfaces(t *testing.T) {
	svc, _, subs, _, mail := newTestCancellation(t)
	mail.fail = true
	ctx := context.Background()
	seedSubscription(t, subs, "user@example.com")
	require.Error(t, svc.Request(ctx, "user@example.com"))
}

func TestMergeUpsert_PartialFields(t *testing.T) {
	users := NewMemoryStore()
	ctx := context.Background()
	name := "Dr. Sato"
	facility := "Sakura Clinic"
	consent := true

	_, err := users.MergeUpsert(ctx, &ProfileUpdate{Email: "User@Example.com", Name: &name, Facility: &facility})
	require.NoError(t, err)

	rec, err := users.MergeUpsert(ctx, &ProfileUpdate{Email: "user@example.com", MarketingConsent: &consent})
	require.NoError(t, err)
	require.Equal(t, "Dr. Sato", rec.Name)
	require.Equal(t, "Sakura Clinic", rec.Facility)
	require.NotNil(t, rec.MarketingConsent)
	require.True(t, *rec.MarketingConsent)
}
