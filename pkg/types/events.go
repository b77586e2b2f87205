package types

// WebhookEventType is the processor's event-type tag. Only the tags below are
// acted on; anything else is accepted and ignored so processor API evolution
// never turns into webhook failures.
type WebhookEventType string

const (
	WebhookEventCheckoutCompleted   WebhookEventType = "checkout.session.completed"
	WebhookEventSubscriptionUpdated WebhookEventType = "customer.subscription.updated"
	WebhookEventSubscriptionDeleted WebhookEventType = "customer.subscription.deleted"
	WebhookEventInvoicePaid         WebhookEventType = "invoice.payment_succeeded"
	WebhookEventInvoiceFailed       WebhookEventType = "invoice.payment_failed"
)
