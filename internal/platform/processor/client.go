package processor

import (
	"context"
	"fmt"

	stripe "github.com/stripe/stripe-go/v82"
	stripeclient "github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cfgpkg "github.com/karteai/billing/pkg/config"
)

// Client is the payment processor surface the service depends on. Everything
// here treats the processor as the source of truth.
type Client interface {
	// VerifyWebhook checks the payload signature against the shared secret
	// before anything is decoded. Returns ErrInvalidSignature on mismatch.
	VerifyWebhook(payload []byte, sigHeader string) (*Event, error)
	// GetSubscription fetches the processor's current view of a subscription.
	GetSubscription(ctx context.Context, id string) (*Subscription, error)
	// GetCustomerEmail resolves a customer id to its email address. Returns
	// "" with nil error when the processor has no address on file.
	GetCustomerEmail(ctx context.Context, customerID string) (string, error)
	// ListSubscriptions pages serially through every subscription across all
	// statuses, invoking fn per subscription. Returns the number of
	// subscriptions seen and, when paging stopped early, the listing error.
	ListSubscriptions(ctx context.Context, fn func(*Subscription) error) (int, error)
	// SetCancelAtPeriodEnd schedules or unschedules a cancellation.
	SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (*Subscription, error)
}

type stripeClient struct {
	api           *stripeclient.API
	webhookSecret string
	pageSize      int64
	log           *zap.SugaredLogger
}

func NewClient(cfg *cfgpkg.Config, log *zap.SugaredLogger) (Client, error) {
	if cfg.Processor.SecretKey == "" {
		return nil, fmt.Errorf("processor secret key is empty")
	}
	if cfg.Processor.WebhookSecret == "" {
		return nil, fmt.Errorf("processor webhook secret is empty")
	}
	api := &stripeclient.API{}
	api.Init(cfg.Processor.SecretKey, nil)
	return &stripeClient{
		api:           api,
		webhookSecret: cfg.Processor.WebhookSecret,
		pageSize:      cfg.Processor.PageSize,
		log:           log,
	}, nil
}

func (c *stripeClient) VerifyWebhook(payload []byte, sigHeader string) (*Event, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, sigHeader, c.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return &Event{ID: ev.ID, Type: string(ev.Type), Raw: ev.Data.Raw}, nil
}

func (c *stripeClient) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	params.AddExpand("customer")
	s, err := c.api.Subscriptions.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("get subscription %s: %w", id, err)
	}
	return fromStripeSubscription(s), nil
}

func (c *stripeClient) GetCustomerEmail(ctx context.Context, customerID string) (string, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	cust, err := c.api.Customers.Get(customerID, params)
	if err != nil {
		return "", fmt.Errorf("get customer %s: %w", customerID, err)
	}
	if cust.Deleted {
		return "", nil
	}
	return cust.Email, nil
}

func (c *stripeClient) ListSubscriptions(ctx context.Context, fn func(*Subscription) error) (int, error) {
	params := &stripe.SubscriptionListParams{Status: stripe.String("all")}
	params.Context = ctx
	params.AddExpand("data.customer")
	if c.pageSize > 0 {
		params.Limit = stripe.Int64(c.pageSize)
	}

	seen := 0
	iter := c.api.Subscriptions.List(params)
	for iter.Next() {
		seen++
		if err := fn(fromStripeSubscription(iter.Subscription())); err != nil {
			// fn owns per-item error policy; an error here means stop paging.
			return seen, err
		}
	}
	if err := iter.Err(); err != nil {
		return seen, fmt.Errorf("list subscriptions: %w", err)
	}
	return seen, nil
}

func (c *stripeClient) SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (*Subscription, error) {
	params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(cancel)}
	params.Context = ctx
	s, err := c.api.Subscriptions.Update(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("update subscription %s: %w", subscriptionID, err)
	}
	return fromStripeSubscription(s), nil
}

func fromStripeSubscription(s *stripe.Subscription) *Subscription {
	if s == nil {
		return nil
	}
	out := &Subscription{
		ID:                s.ID,
		Status:            string(s.Status),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		TrialEnd:          unixTime(s.TrialEnd),
		CanceledAt:        unixTime(s.CanceledAt),
		CreatedAt:         unixTime(s.Created),
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
		out.CustomerEmail = s.Customer.Email
	}
	// Period ends live on subscription items; take the furthest one.
	if s.Items != nil {
		var periodEnd int64
		for _, it := range s.Items.Data {
			if it != nil && it.CurrentPeriodEnd > periodEnd {
				periodEnd = it.CurrentPeriodEnd
			}
		}
		out.CurrentPeriodEnd = unixTime(periodEnd)
	}
	return out
}

var Module = fx.Options(
	fx.Provide(NewClient),
)
