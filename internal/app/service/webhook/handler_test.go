package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/karteai/billing/internal/app/service/eventlog"
	"github.com/karteai/billing/internal/app/service/notifier"
	"github.com/karteai/billing/internal/app/service/receipt"
	"github.com/karteai/billing/internal/app/service/subscription"
	"github.com/karteai/billing/internal/models"
	"github.com/karteai/billing/internal/platform/processor"
	"github.com/karteai/billing/internal/platform/redisstore"
	"github.com/karteai/billing/pkg/auth"
	cfgpkg "github.com/karteai/billing/pkg/config"
	"github.com/karteai/billing/pkg/types"
)

// stubClient fakes the processor. A payload is "signed" when the header is
// exactly validSig; the payload itself carries the event envelope as JSON.
type stubClient struct {
	processor.Client
	subs   map[string]*processor.Subscription
	emails map[string]string
}

const validSig = "t=1,v1=valid"

func (s *stubClient) VerifyWebhook(payload []byte, sigHeader string) (*processor.Event, error) {
	if sigHeader != validSig {
		return nil, fmt.Errorf("%w: header mismatch", processor.ErrInvalidSignature)
	}
	var env struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			Object json.RawMessage `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, err
	}
	return &processor.Event{ID: env.ID, Type: env.Type, Raw: env.Data.Object}, nil
}

func (s *stubClient) GetSubscription(_ context.Context, id string) (*processor.Subscription, error) {
	ps, ok := s.subs[id]
	if !ok {
		return nil, fmt.Errorf("no such subscription %s", id)
	}
	cp := *ps
	return &cp, nil
}

func (s *stubClient) GetCustomerEmail(_ context.Context, customerID string) (string, error) {
	return s.emails[customerID], nil
}

// recordingNotifier records sends per kind instead of delivering.
type recordingNotifier struct {
	sends map[notifier.Kind][]string
	token string
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{sends: make(map[notifier.Kind][]string)}
}

func (n *recordingNotifier) record(kind notifier.Kind, email string) notifier.SendResult {
	n.sends[kind] = append(n.sends[kind], email)
	return notifier.SendResult{Kind: kind, Recipient: email}
}

func (n *recordingNotifier) SendWelcome(_ context.Context, email, token string) notifier.SendResult {
	n.token = token
	return n.record(notifier.KindWelcome, email)
}
func (n *recordingNotifier) SendTrialEnded(_ context.Context, email string) notifier.SendResult {
	return n.record(notifier.KindTrialEnded, email)
}
func (n *recordingNotifier) SendTrialWarning(_ context.Context, email string, _ *time.Time) notifier.SendResult {
	return n.record(notifier.KindTrialWarning, email)
}
func (n *recordingNotifier) SendCancellationScheduled(_ context.Context, email string, _ *time.Time) notifier.SendResult {
	return n.record(notifier.KindCancellationScheduled, email)
}
func (n *recordingNotifier) SendCancellationComplete(_ context.Context, email string, _ *time.Time) notifier.SendResult {
	return n.record(notifier.KindCancellationComplete, email)
}
func (n *recordingNotifier) SendPaymentFailed(_ context.Context, email string) notifier.SendResult {
	return n.record(notifier.KindPaymentFailed, email)
}
func (n *recordingNotifier) SendReceipt(_ context.Context, email string, _ *models.Receipt) notifier.SendResult {
	return n.record(notifier.KindReceipt, email)
}
func (n *recordingNotifier) SendCancelOTP(_ context.Context, email, _ string) notifier.SendResult {
	return n.record(notifier.KindCancelOTP, email)
}

// stubIssuer issues receipts in memory, idempotent on invoice id.
type stubIssuer struct {
	issued map[string]*models.Receipt
}

func (s *stubIssuer) IssueForInvoice(_ context.Context, email string, inv *processor.InvoicePayload) (*models.Receipt, bool, error) {
	if s.issued == nil {
		s.issued = make(map[string]*models.Receipt)
	}
	if rec, ok := s.issued[inv.ID]; ok {
		return rec, false, nil
	}
	rec := receipt.Build(email, inv, time.Now())
	s.issued[inv.ID] = rec
	return rec, true, nil
}

type fixture struct {
	d     *Dispatcher
	store *subscription.MemoryStore
	proc  *stubClient
	mail  *recordingNotifier
	maker *auth.Maker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	maker, err := auth.NewMaker(&cfgpkg.Config{Auth: cfgpkg.AuthConfig{
		SessionSecret:   "test-secret",
		SessionTTLHours: 1,
		OTPTTLMinutes:   10,
	}})
	require.NoError(t, err)

	store := subscription.NewMemoryStore()
	proc := &stubClient{
		subs:   make(map[string]*processor.Subscription),
		emails: make(map[string]string),
	}
	mail := newRecordingNotifier()
	d := NewDispatcher(proc, redisstore.NewMemoryDeduper(), store, &stubIssuer{}, mail, eventlog.Noop{}, maker, zap.NewNop().Sugar())
	return &fixture{d: d, store: store, proc: proc, mail: mail, maker: maker}
}

func eventPayload(t *testing.T, id, typ string, object any) []byte {
	t.Helper()
	raw, err := json.Marshal(object)
	require.NoError(t, err)
	payload, err := json.Marshal(map[string]any{
		"id":   id,
		"type": typ,
		"data": map[string]any{"object": json.RawMessage(raw)},
	})
	require.NoError(t, err)
	return payload
}

func subscriptionObject(status string, cancelAtPeriodEnd bool, periodEnd time.Time) map[string]any {
	return map[string]any{
		"id":                   "sub_1",
		"customer":             "cus_1",
		"status":               status,
		"cancel_at_period_end": cancelAtPeriodEnd,
		"items": map[string]any{
			"data": []map[string]any{{"current_period_end": periodEnd.Unix()}},
		},
	}
}

func TestHandle_InvalidSignature(t *testing.T) {
	f := newFixture(t)
	err := f.d.Handle(context.Background(), []byte(`{}`), "t=1,v1=bogus")
	require.ErrorIs(t, err, processor.ErrInvalidSignature)

	rec, err := f.store.Get(context.Background(), "user@example.com")
	require.NoError(t, err)
	require.Nil(t, rec)
}

func TestHandle_CheckoutCompleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	trialEnd := time.Now().Add(14 * 24 * time.Hour).Truncate(time.Second)
	f.proc.subs["sub_1"] = &processor.Subscription{
		ID:         "sub_1",
		CustomerID: "cus_1",
		Status:     "trialing",
		TrialEnd:   &trialEnd,
	}

	payload := eventPayload(t, "evt_1", string(types.WebhookEventCheckoutCompleted), map[string]any{
		"id":           "cs_1",
		"mode":         "subscription",
		"customer":     "cus_1",
		"subscription": "sub_1",
		"customer_details": map[string]any{
			"email": "User@Example.com",
		},
	})
	require.NoError(t, f.d.Handle(ctx, payload, validSig))

	rec, err := f.store.Get(ctx, "user@example.com")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, types.SubscriptionStatusTrialing, rec.Status)
	require.Equal(t, "sub_1", rec.ProcessorSubscriptionID)
	require.Equal(t, "cus_1", rec.ProcessorCustomerID)
	require.NotEmpty(t, rec.CreatedDate)
	require.Nil(t, rec.LastSyncedAt)

	require.Equal(t, []string{"user@example.com"}, f.mail.sends[notifier.KindWelcome])
	email, err := f.maker.ParseSession(f.mail.token)
	require.NoError(t, err)
	require.Equal(t, "user@example.com", email)

	require.True(t, subscription.IsActive(rec, time.Now()))
}

func TestHandle_DuplicateEventDropped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.proc.subs["sub_1"] = &processor.Subscription{ID: "sub_1", CustomerID: "cus_1", Status: "trialing"}

	payload := eventPayload(t, "evt_dup", string(types.WebhookEventCheckoutCompleted), map[string]any{
		"subscription":     "sub_1",
		"customer":         "cus_1",
		"customer_details": map[string]any{"email": "user@example.com"},
	})
	require.NoError(t, f.d.Handle(ctx, payload, validSig))
	require.NoError(t, f.d.Handle(ctx, payload, validSig))
	require.Len(t, f.mail.sends[notifier.KindWelcome], 1)
}

// flakyStore fails a set number of upserts before delegating.
type flakyStore struct {
	subscription.Store
	failures int
}

func (s *flakyStore) Upsert(ctx context.Context, upd *subscription.RecordUpdate) (*models.SubscriptionRecord, *models.SubscriptionRecord, error) {
	if s.failures > 0 {
		s.failures--
		return nil, nil, fmt.Errorf("store unavailable")
	}
	return s.Store.Upsert(ctx, upd)
}

func TestHandle_RetryAfterFailureNotDropped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.proc.subs["sub_1"] = &processor.Subscription{ID: "sub_1", CustomerID: "cus_1", Status: "trialing"}

	flaky := &flakyStore{Store: f.store, failures: 1}
	d := NewDispatcher(f.proc, redisstore.NewMemoryDeduper(), flaky, &stubIssuer{}, f.mail, eventlog.Noop{}, f.maker, zap.NewNop().Sugar())

	payload := eventPayload(t, "evt_retry", string(types.WebhookEventCheckoutCompleted), map[string]any{
		"subscription":     "sub_1",
		"customer":         "cus_1",
		"customer_details": map[string]any{"email": "user@example.com"},
	})

	// First delivery fails transiently; the processor will retry it under
	// the same event id, and that retry must be handled, not deduplicated.
	require.Error(t, d.Handle(ctx, payload, validSig))
	require.Empty(t, f.mail.sends[notifier.KindWelcome])

	require.NoError(t, d.Handle(ctx, payload, validSig))
	rec, err := f.store.Get(ctx, "user@example.com")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Len(t, f.mail.sends[notifier.KindWelcome], 1)

	// A third delivery is now a genuine duplicate.
	require.NoError(t, d.Handle(ctx, payload, validSig))
	require.Len(t, f.mail.sends[notifier.KindWelcome], 1)
}

func TestHandle_TrialToActiveSendsTrialEnded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.proc.emails["cus_1"] = "user@example.com"

	seedRecord(t, f.store, "user@example.com", types.SubscriptionStatusTrialing)

	periodEnd := time.Now().Add(30 * 24 * time.Hour)
	payload := eventPayload(t, "evt_2", string(types.WebhookEventSubscriptionUpdated),
		subscriptionObject("active", false, periodEnd))
	require.NoError(t, f.d.Handle(ctx, payload, validSig))

	rec, err := f.store.Get(ctx, "user@example.com")
	require.NoError(t, err)
	require.Equal(t, types.SubscriptionStatusActive, rec.Status)
	require.Nil(t, rec.LastSyncedAt)
	require.Equal(t, []string{"user@example.com"}, f.mail.sends[notifier.KindTrialEnded])
}

func TestHandle_CancellationScheduledOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.proc.emails["cus_1"] = "user@example.com"
	seedRecord(t, f.store, "user@example.com", types.SubscriptionStatusActive)

	periodEnd := time.Now().Add(10 * 24 * time.Hour)
	first := eventPayload(t, "evt_3", string(types.WebhookEventSubscriptionUpdated),
		subscriptionObject("active", true, periodEnd))
	require.NoError(t, f.d.Handle(ctx, first, validSig))

	rec, err := f.store.Get(ctx, "user@example.com")
	require.NoError(t, err)
	require.True(t, rec.CancelAtPeriodEnd)
	require.NotNil(t, rec.CancelNoticeSentAt)
	require.Len(t, f.mail.sends[notifier.KindCancellationScheduled], 1)

	// A later update with the flag still set must not re-mail.
	second := eventPayload(t, "evt_4", string(types.WebhookEventSubscriptionUpdated),
		subscriptionObject("active", true, periodEnd))
	require.NoError(t, f.d.Handle(ctx, second, validSig))
	require.Len(t, f.mail.sends[notifier.KindCancellationScheduled], 1)

	// Resuming the subscription re-arms the guard.
	resume := eventPayload(t, "evt_5", string(types.WebhookEventSubscriptionUpdated),
		subscriptionObject("active", false, periodEnd))
	require.NoError(t, f.d.Handle(ctx, resume, validSig))
	cancelAgain := eventPayload(t, "evt_6", string(types.WebhookEventSubscriptionUpdated),
		subscriptionObject("active", true, periodEnd))
	require.NoError(t, f.d.Handle(ctx, cancelAgain, validSig))
	require.Len(t, f.mail.sends[notifier.KindCancellationScheduled], 2)
}

func TestHandle_SubscriptionDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.proc.emails["cus_1"] = "user@example.com"
	seedRecord(t, f.store, "user@example.com", types.SubscriptionStatusActive)

	periodEnd := time.Now().Add(5 * 24 * time.Hour).Truncate(time.Second)
	payload := eventPayload(t, "evt_7", string(types.WebhookEventSubscriptionDeleted),
		subscriptionObject("canceled", false, periodEnd))
	require.NoError(t, f.d.Handle(ctx, payload, validSig))

	rec, err := f.store.Get(ctx, "user@example.com")
	require.NoError(t, err)
	require.Equal(t, types.SubscriptionStatusCanceled, rec.Status)
	require.False(t, rec.CancelAtPeriodEnd)
	require.NotNil(t, rec.CanceledAt)
	require.Equal(t, []string{"user@example.com"}, f.mail.sends[notifier.KindCancellationComplete])

	// Paid-through access survives until the period end passes.
	require.True(t, subscription.IsActive(rec, time.Now()))
	require.False(t, subscription.IsActive(rec, periodEnd.Add(time.Second)))
}

func TestHandle_InvoicePaidIssuesReceiptOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	invoice := map[string]any{
		"id":             "in_1",
		"customer":       "cus_1",
		"customer_email": "user@example.com",
		"number":         "INV-0001",
		"amount_paid":    1980,
		"currency":       "jpy",
		"paid":           true,
	}
	require.NoError(t, f.d.Handle(ctx, eventPayload(t, "evt_8", string(types.WebhookEventInvoicePaid), invoice), validSig))
	require.Len(t, f.mail.sends[notifier.KindReceipt], 1)

	// Same invoice under a fresh event id: receipt already exists, no re-mail.
	require.NoError(t, f.d.Handle(ctx, eventPayload(t, "evt_9", string(types.WebhookEventInvoicePaid), invoice), validSig))
	require.Len(t, f.mail.sends[notifier.KindReceipt], 1)
}

func TestHandle_InvoiceFailedMailsOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.proc.emails["cus_1"] = "user@example.com"
	seedRecord(t, f.store, "user@example.com", types.SubscriptionStatusActive)

	payload := eventPayload(t, "evt_10", string(types.WebhookEventInvoiceFailed), map[string]any{
		"id":       "in_2",
		"customer": "cus_1",
	})
	require.NoError(t, f.d.Handle(ctx, payload, validSig))
	require.Equal(t, []string{"user@example.com"}, f.mail.sends[notifier.KindPaymentFailed])

	rec, err := f.store.Get(ctx, "user@example.com")
	require.NoError(t, err)
	require.Equal(t, types.SubscriptionStatusActive, rec.Status)
}

func TestHandle_UnknownEventTypeIgnored(t *testing.T) {
	f := newFixture(t)
	payload := eventPayload(t, "evt_11", "customer.created", map[string]any{"id": "cus_9"})
	require.NoError(t, f.d.Handle(context.Background(), payload, validSig))
	require.Empty(t, f.mail.sends)
}

func TestHandle_MissingCustomerEmailSkipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	// cus_1 resolves to no address.
	payload := eventPayload(t, "evt_12", string(types.WebhookEventSubscriptionUpdated),
		subscriptionObject("active", false, time.Now().Add(24*time.Hour)))
	require.NoError(t, f.d.Handle(ctx, payload, validSig))

	rec, err := f.store.Get(ctx, "user@example.com")
	require.NoError(t, err)
	require.Nil(t, rec)
}

func seedRecord(t *testing.T, store *subscription.MemoryStore, email string, status types.SubscriptionStatus) {
	t.Helper()
	end := time.Now().Add(30 * 24 * time.Hour)
	_, _, err := store.Upsert(context.Background(), &subscription.RecordUpdate{
		Email:                   email,
		Status:                  status,
		CurrentPeriodEnd:        &end,
		ProcessorCustomerID:     "cus_1",
		ProcessorSubscriptionID: "sub_1",
		CreatedDate:             time.Now().Format(time.DateOnly),
		Reason:                  types.SubscriptionChangeReasonCheckout,
	})
	require.NoError(t, err)
}
