package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/karteai/billing/internal/app/service/eventlog"
	"github.com/karteai/billing/internal/app/service/notifier"
	"github.com/karteai/billing/internal/app/service/receipt"
	"github.com/karteai/billing/internal/app/service/subscription"
	"github.com/karteai/billing/internal/models"
	"github.com/karteai/billing/internal/platform/processor"
	"github.com/karteai/billing/internal/platform/redisstore"
	"github.com/karteai/billing/pkg/auth"
	"github.com/karteai/billing/pkg/logctx"
	"github.com/karteai/billing/pkg/metrics"
	"github.com/karteai/billing/pkg/tool"
	"github.com/karteai/billing/pkg/types"
)

// Dispatcher verifies, deduplicates and handles processor webhook events. It
// only ever mirrors the processor's state; business decisions live in the
// record, not here.
type Dispatcher struct {
	proc     processor.Client
	dedup    redisstore.Deduper
	store    subscription.Store
	receipts receipt.Issuer
	notifier notifier.Notifier
	events   eventlog.Recorder
	maker    *auth.Maker
	log      *zap.SugaredLogger

	now func() time.Time
}

func NewDispatcher(
	proc processor.Client,
	dedup redisstore.Deduper,
	store subscription.Store,
	receipts receipt.Issuer,
	n notifier.Notifier,
	events eventlog.Recorder,
	maker *auth.Maker,
	log *zap.SugaredLogger,
) *Dispatcher {
	return &Dispatcher{
		proc:     proc,
		dedup:    dedup,
		store:    store,
		receipts: receipts,
		notifier: n,
		events:   events,
		maker:    maker,
		log:      log,
		now:      time.Now,
	}
}

// Handle verifies the payload signature, drops replays, and dispatches by
// event type. A signature failure returns processor.ErrInvalidSignature
// wrapped; nothing has been written by then.
func (d *Dispatcher) Handle(ctx context.Context, payload []byte, sigHeader string) error {
	ev, err := d.proc.VerifyWebhook(payload, sigHeader)
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues("unknown", "signature_rejected").Inc()
		return err
	}
	log := logctx.FromCtx(ctx, d.log).With("event_id", ev.ID, "event_type", ev.Type)

	seen, err := d.dedup.Seen(ctx, ev.ID)
	if err != nil {
		log.Warnw("dedup check failed, handling anyway", "error", err)
	}
	if seen {
		log.Infow("duplicate event dropped")
		metrics.WebhookEventsTotal.WithLabelValues(ev.Type, "duplicate").Inc()
		return nil
	}

	entry := &models.WebhookEventLog{
		ProviderEventID: ev.ID,
		EventType:       ev.Type,
		TraceID:         logctx.TraceID(ctx),
		EventTime:       d.now(),
		Data:            datatypes.JSON(ev.Raw),
		Status:          models.WebhookEventLogStatusReceived,
	}

	email, err := d.dispatch(ctx, ev)
	outcome := "handled"
	entry.Status = models.WebhookEventLogStatusHandled
	if err != nil {
		outcome = "failed"
		entry.Status = models.WebhookEventLogStatusHandleFailed
		result := datatypes.JSON(fmt.Sprintf(`{"error":%q}`, err.Error()))
		entry.Result = &result
	}
	if email != "" {
		entry.Email = &email
	}
	d.events.Save(ctx, entry)
	metrics.WebhookEventsTotal.WithLabelValues(ev.Type, outcome).Inc()
	if err != nil {
		return fmt.Errorf("handle %s event %s: %w", ev.Type, ev.ID, err)
	}
	// Mark only after success, so a failed attempt leaves the id free and the
	// processor's retry is handled instead of dropped.
	if err := d.dedup.Mark(ctx, ev.ID); err != nil {
		log.Warnw("failed to mark event handled", "error", err)
	}
	return nil
}

// dispatch routes a verified event and returns the email it concerned, when
// one could be resolved. Unrecognized event types are accepted and ignored.
func (d *Dispatcher) dispatch(ctx context.Context, ev *processor.Event) (string, error) {
	switch types.WebhookEventType(ev.Type) {
	case types.WebhookEventCheckoutCompleted:
		return d.handleCheckoutCompleted(ctx, ev)
	case types.WebhookEventSubscriptionUpdated:
		return d.handleSubscriptionUpdated(ctx, ev)
	case types.WebhookEventSubscriptionDeleted:
		return d.handleSubscriptionDeleted(ctx, ev)
	case types.WebhookEventInvoicePaid:
		return d.handleInvoicePaid(ctx, ev)
	case types.WebhookEventInvoiceFailed:
		return d.handleInvoiceFailed(ctx, ev)
	default:
		logctx.FromCtx(ctx, d.log).Debugw("ignoring event type", "event_type", ev.Type)
		return "", nil
	}
}

func (d *Dispatcher) handleCheckoutCompleted(ctx context.Context, ev *processor.Event) (string, error) {
	var sess processor.CheckoutSession
	if err := json.Unmarshal(ev.Raw, &sess); err != nil {
		return "", fmt.Errorf("decode checkout session: %w", err)
	}
	email := tool.NormalizeEmail(sess.Email())
	if email == "" {
		logctx.FromCtx(ctx, d.log).Warnw("checkout session has no customer email, skipping", "session_id", sess.ID)
		return "", nil
	}
	if sess.Subscription == "" {
		logctx.FromCtx(ctx, d.log).Warnw("checkout session has no subscription, skipping", "session_id", sess.ID)
		return email, nil
	}

	// The session payload carries no subscription detail, so fetch the
	// processor's current view before writing.
	ps, err := d.proc.GetSubscription(ctx, sess.Subscription)
	if err != nil {
		return email, err
	}
	upd := subscription.UpdateFromProcessor(ps, types.SubscriptionChangeReasonCheckout, false)
	upd.Email = email
	if upd.CreatedDate == "" {
		upd.CreatedDate = d.now().Format(time.DateOnly)
	}
	if _, _, err := d.store.Upsert(ctx, upd); err != nil {
		return email, err
	}

	token, err := d.maker.IssueSession(email)
	if err != nil {
		logctx.FromCtx(ctx, d.log).Errorw("failed to issue session token", "email", email, "error", err)
		return email, nil
	}
	d.notifier.SendWelcome(ctx, email, token)
	return email, nil
}

func (d *Dispatcher) handleSubscriptionUpdated(ctx context.Context, ev *processor.Event) (string, error) {
	ps, email, err := d.decodeSubscriptionEvent(ctx, ev)
	if err != nil || email == "" {
		return email, err
	}

	upd := subscription.UpdateFromProcessor(ps, types.SubscriptionChangeReasonUpdate, false)
	upd.Email = email
	before, after, err := d.store.Upsert(ctx, upd)
	if err != nil {
		return email, err
	}

	if before != nil && before.Status == types.SubscriptionStatusTrialing &&
		after.Status == types.SubscriptionStatusActive {
		d.notifier.SendTrialEnded(ctx, email)
	}
	if after.CancelAtPeriodEnd && after.CancelNoticeSentAt == nil {
		if res := d.notifier.SendCancellationScheduled(ctx, email, after.CurrentPeriodEnd); !res.Suppressed() {
			if err := d.store.MarkCancelNoticeSent(ctx, email, d.now()); err != nil {
				logctx.FromCtx(ctx, d.log).Errorw("failed to mark cancel notice", "email", email, "error", err)
			}
		}
	}
	return email, nil
}

func (d *Dispatcher) handleSubscriptionDeleted(ctx context.Context, ev *processor.Event) (string, error) {
	ps, email, err := d.decodeSubscriptionEvent(ctx, ev)
	if err != nil || email == "" {
		return email, err
	}

	upd := subscription.UpdateFromProcessor(ps, types.SubscriptionChangeReasonCancel, false)
	upd.Email = email
	upd.Status = types.SubscriptionStatusCanceled
	// The scheduled-cancellation flag has served its purpose once the
	// subscription is gone.
	upd.CancelAtPeriodEnd = false
	if upd.CanceledAt == nil {
		t := d.now()
		upd.CanceledAt = &t
	}
	_, after, err := d.store.Upsert(ctx, upd)
	if err != nil {
		return email, err
	}
	d.notifier.SendCancellationComplete(ctx, email, after.CurrentPeriodEnd)
	return email, nil
}

func (d *Dispatcher) handleInvoicePaid(ctx context.Context, ev *processor.Event) (string, error) {
	var inv processor.InvoicePayload
	if err := json.Unmarshal(ev.Raw, &inv); err != nil {
		return "", fmt.Errorf("decode invoice: %w", err)
	}
	email, err := d.resolveInvoiceEmail(ctx, &inv)
	if err != nil || email == "" {
		return email, err
	}

	rec, created, err := d.receipts.IssueForInvoice(ctx, email, &inv)
	if err != nil {
		return email, err
	}
	if created {
		d.notifier.SendReceipt(ctx, email, rec)
	}
	return email, nil
}

// handleInvoiceFailed mails the subscriber; the status change itself arrives
// via the subscription-updated event, so no record write happens here.
func (d *Dispatcher) handleInvoiceFailed(ctx context.Context, ev *processor.Event) (string, error) {
	var inv processor.InvoicePayload
	if err := json.Unmarshal(ev.Raw, &inv); err != nil {
		return "", fmt.Errorf("decode invoice: %w", err)
	}
	email, err := d.resolveInvoiceEmail(ctx, &inv)
	if err != nil || email == "" {
		return email, err
	}
	d.notifier.SendPaymentFailed(ctx, email)
	return email, nil
}

// decodeSubscriptionEvent decodes a subscription payload and resolves the
// owning email via the processor's customer object. A customer without an
// address is logged and skipped, never failed.
func (d *Dispatcher) decodeSubscriptionEvent(ctx context.Context, ev *processor.Event) (*processor.Subscription, string, error) {
	var p processor.SubscriptionPayload
	if err := json.Unmarshal(ev.Raw, &p); err != nil {
		return nil, "", fmt.Errorf("decode subscription: %w", err)
	}
	ps := p.ToSubscription()

	email, err := d.proc.GetCustomerEmail(ctx, ps.CustomerID)
	if err != nil {
		return nil, "", fmt.Errorf("resolve customer %s: %w", ps.CustomerID, err)
	}
	email = tool.NormalizeEmail(email)
	if email == "" {
		logctx.FromCtx(ctx, d.log).Warnw("customer has no email, skipping event",
			"customer_id", ps.CustomerID, "subscription_id", ps.ID)
		return nil, "", nil
	}
	ps.CustomerEmail = email
	return ps, email, nil
}

func (d *Dispatcher) resolveInvoiceEmail(ctx context.Context, inv *processor.InvoicePayload) (string, error) {
	if inv.CustomerEmail != "" {
		return tool.NormalizeEmail(inv.CustomerEmail), nil
	}
	if inv.Customer == "" {
		logctx.FromCtx(ctx, d.log).Warnw("invoice has no customer, skipping", "invoice_id", inv.ID)
		return "", nil
	}
	email, err := d.proc.GetCustomerEmail(ctx, inv.Customer)
	if err != nil {
		return "", fmt.Errorf("resolve customer %s: %w", inv.Customer, err)
	}
	email = tool.NormalizeEmail(email)
	if email == "" {
		logctx.FromCtx(ctx, d.log).Warnw("customer has no email, skipping invoice",
			"customer_id", inv.Customer, "invoice_id", inv.ID)
	}
	return email, nil
}

var Module = fx.Options(
	fx.Provide(NewDispatcher),
)
