package types

import "time"

// SubscriptionStatus mirrors the payment processor's subscription status
// vocabulary. The local store caches the processor's last-known value and is
// never the source of truth.
type SubscriptionStatus string

const (
	SubscriptionStatusTrialing SubscriptionStatus = "trialing"
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
	// SubscriptionStatusInactive is the default when no processor status has
	// ever been observed for an email.
	SubscriptionStatusInactive SubscriptionStatus = "inactive"
)

// SubscriptionChangeReason labels why a record write happened, for the change log.
type SubscriptionChangeReason string

const (
	SubscriptionChangeReasonCheckout    SubscriptionChangeReason = "checkout"
	SubscriptionChangeReasonUpdate      SubscriptionChangeReason = "update"
	SubscriptionChangeReasonCancel      SubscriptionChangeReason = "cancel"
	SubscriptionChangeReasonReconcile   SubscriptionChangeReason = "reconcile"
	SubscriptionChangeReasonUserRequest SubscriptionChangeReason = "user_request"
)

// SubscriptionInfo is the access-check response payload. The shape is a wire
// contract with the extension and chat clients; do not wrap it in an envelope.
type SubscriptionInfo struct {
	Active bool       `json:"active"`
	Status string     `json:"status"`
	Expiry *time.Time `json:"expiry"`
}
