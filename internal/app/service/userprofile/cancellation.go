package userprofile

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/karteai/billing/internal/app/service/notifier"
	"github.com/karteai/billing/internal/app/service/subscription"
	"github.com/karteai/billing/internal/platform/processor"
	"github.com/karteai/billing/pkg/auth"
	"github.com/karteai/billing/pkg/logctx"
	"github.com/karteai/billing/pkg/tool"
	"github.com/karteai/billing/pkg/types"
)

// Cancellation runs the two-step cancellation flow: a one-time code is mailed
// to the subscriber, and only a confirmed code schedules the cancellation at
// the processor. The store is then updated from the processor's response, not
// from the request.
type Cancellation struct {
	users    Store
	subs     subscription.Store
	proc     processor.Client
	maker    *auth.Maker
	notifier notifier.Notifier
	log      *zap.SugaredLogger
}

func NewCancellation(users Store, subs subscription.Store, proc processor.Client, maker *auth.Maker, n notifier.Notifier, log *zap.SugaredLogger) *Cancellation {
	return &Cancellation{users: users, subs: subs, proc: proc, maker: maker, notifier: n, log: log}
}

// Request issues a fresh one-time code and mails it. A renewed request
// replaces any previous code.
func (c *Cancellation) Request(ctx context.Context, email string) error {
	email = tool.NormalizeEmail(email)
	rec, err := c.subs.Get(ctx, email)
	if err != nil {
		return err
	}
	if rec == nil || rec.ProcessorSubscriptionID == "" {
		return fmt.Errorf("no subscription on file for %s", email)
	}

	code, err := generateCode()
	if err != nil {
		return fmt.Errorf("failed to generate one-time code: %w", err)
	}
	token, err := c.maker.IssueOTP(email, code)
	if err != nil {
		return fmt.Errorf("failed to issue otp token: %w", err)
	}
	if err := c.users.SetCancelOTP(ctx, email, token, time.Now()); err != nil {
		return err
	}

	// The code only exists in this mail, so a failed send fails the request.
	if res := c.notifier.SendCancelOTP(ctx, email, code); res.Suppressed() {
		return fmt.Errorf("failed to deliver one-time code: %w", res.Err)
	}
	logctx.FromCtx(ctx, c.log).Infow("cancellation code issued", "email", email)
	return nil
}

// Confirm checks the code, schedules cancellation at period end with the
// processor, and mirrors the processor's response into the record store.
func (c *Cancellation) Confirm(ctx context.Context, email, code string) error {
	email = tool.NormalizeEmail(email)
	user, err := c.users.Get(ctx, email)
	if err != nil {
		return err
	}
	if user == nil || user.CancelOTPToken == "" {
		return fmt.Errorf("no pending cancellation request for %s", email)
	}
	if err := c.maker.VerifyOTP(user.CancelOTPToken, email, code); err != nil {
		return fmt.Errorf("one-time code rejected: %w", err)
	}

	rec, err := c.subs.Get(ctx, email)
	if err != nil {
		return err
	}
	if rec == nil || rec.ProcessorSubscriptionID == "" {
		return fmt.Errorf("no subscription on file for %s", email)
	}

	ps, err := c.proc.SetCancelAtPeriodEnd(ctx, rec.ProcessorSubscriptionID, true)
	if err != nil {
		return fmt.Errorf("failed to schedule cancellation: %w", err)
	}
	upd := subscription.UpdateFromProcessor(ps, types.SubscriptionChangeReasonUserRequest, false)
	if upd.Email == "" {
		upd.Email = email
	}
	if _, _, err := c.subs.Upsert(ctx, upd); err != nil {
		return err
	}

	if err := c.users.ClearCancelOTP(ctx, email); err != nil {
		logctx.FromCtx(ctx, c.log).Warnw("failed to clear cancellation code", "email", email, "error", err)
	}
	logctx.FromCtx(ctx, c.log).Infow("cancellation scheduled", "email", email, "subscription", rec.ProcessorSubscriptionID)
	return nil
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
