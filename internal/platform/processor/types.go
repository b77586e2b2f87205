package processor

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrInvalidSignature marks webhook payloads whose signature does not verify.
// Callers must treat it as terminal for the request with no state change.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// Event is a verified webhook event. Raw is the event object's JSON; it is
// only decoded after the signature has been checked.
type Event struct {
	ID   string
	Type string
	Raw  json.RawMessage
}

// Subscription is the processor's view of a subscription, reduced to the
// fields the record store mirrors.
type Subscription struct {
	ID            string
	CustomerID    string
	CustomerEmail string

	Status            string
	CancelAtPeriodEnd bool

	TrialEnd         *time.Time
	CurrentPeriodEnd *time.Time
	CanceledAt       *time.Time
	CreatedAt        *time.Time
}

// CheckoutSession is the payload of a completed hosted-checkout event.
type CheckoutSession struct {
	ID              string `json:"id"`
	Mode            string `json:"mode"`
	Customer        string `json:"customer"`
	Subscription    string `json:"subscription"`
	CustomerEmail   string `json:"customer_email"`
	CustomerDetails struct {
		Email string `json:"email"`
	} `json:"customer_details"`
	Metadata map[string]string `json:"metadata"`
}

// Email returns the best available customer address on the session.
func (s *CheckoutSession) Email() string {
	if s.CustomerEmail != "" {
		return s.CustomerEmail
	}
	return s.CustomerDetails.Email
}

// SubscriptionPayload decodes the subscription object carried by webhook
// events. Period ends live on items in current processor API versions; the
// top-level field is kept for older payloads.
type SubscriptionPayload struct {
	ID                string `json:"id"`
	Customer          string `json:"customer"`
	Status            string `json:"status"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
	CurrentPeriodEnd  int64  `json:"current_period_end"`
	TrialEnd          int64  `json:"trial_end"`
	CanceledAt        int64  `json:"canceled_at"`
	Created           int64  `json:"created"`
	Items             struct {
		Data []struct {
			CurrentPeriodEnd int64 `json:"current_period_end"`
		} `json:"data"`
	} `json:"items"`
}

// ToSubscription maps the raw payload to the reduced Subscription view.
// CustomerEmail stays empty; webhook payloads never carry it.
func (p *SubscriptionPayload) ToSubscription() *Subscription {
	periodEnd := p.CurrentPeriodEnd
	for _, it := range p.Items.Data {
		if it.CurrentPeriodEnd > periodEnd {
			periodEnd = it.CurrentPeriodEnd
		}
	}
	return &Subscription{
		ID:                p.ID,
		CustomerID:        p.Customer,
		Status:            p.Status,
		CancelAtPeriodEnd: p.CancelAtPeriodEnd,
		TrialEnd:          unixTime(p.TrialEnd),
		CurrentPeriodEnd:  unixTime(periodEnd),
		CanceledAt:        unixTime(p.CanceledAt),
		CreatedAt:         unixTime(p.Created),
	}
}

// InvoicePayload decodes the invoice object carried by invoice events.
type InvoicePayload struct {
	ID            string `json:"id"`
	Customer      string `json:"customer"`
	CustomerEmail string `json:"customer_email"`
	Subscription  string `json:"subscription"`
	Number        string `json:"number"`
	AmountPaid    int64  `json:"amount_paid"`
	Currency      string `json:"currency"`
	PeriodStart   int64  `json:"period_start"`
	PeriodEnd     int64  `json:"period_end"`
	Paid          bool   `json:"paid"`
}

func unixTime(v int64) *time.Time {
	if v <= 0 {
		return nil
	}
	t := time.Unix(v, 0).UTC()
	return &t
}
