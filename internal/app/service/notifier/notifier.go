package notifier

import (
	"context"
	"fmt"
	"net/smtp"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/karteai/billing/internal/models"
	cfgpkg "github.com/karteai/billing/pkg/config"
	"github.com/karteai/billing/pkg/logctx"
	"github.com/karteai/billing/pkg/metrics"
)

type Kind string

const (
	KindWelcome               Kind = "welcome"
	KindTrialEnded            Kind = "trial_ended"
	KindTrialWarning          Kind = "trial_warning"
	KindCancellationScheduled Kind = "cancellation_scheduled"
	KindCancellationComplete  Kind = "cancellation_complete"
	KindPaymentFailed         Kind = "payment_failed"
	KindReceipt               Kind = "receipt"
	KindCancelOTP             Kind = "cancel_otp"
)

// SendResult is the typed outcome of a best-effort notification. Store writes
// commit before any send, so a failed send is suppressed, not propagated —
// this type keeps the suppression observable.
type SendResult struct {
	Kind      Kind
	Recipient string
	Err       error
}

// Suppressed reports whether the send failed and the failure was swallowed.
func (r SendResult) Suppressed() bool { return r.Err != nil }

// Notifier sends the transactional emails triggered by billing events.
type Notifier interface {
	SendWelcome(ctx context.Context, email, sessionToken string) SendResult
	SendTrialEnded(ctx context.Context, email string) SendResult
	SendTrialWarning(ctx context.Context, email string, trialEnd *time.Time) SendResult
	SendCancellationScheduled(ctx context.Context, email string, periodEnd *time.Time) SendResult
	SendCancellationComplete(ctx context.Context, email string, periodEnd *time.Time) SendResult
	SendPaymentFailed(ctx context.Context, email string) SendResult
	SendReceipt(ctx context.Context, email string, receipt *models.Receipt) SendResult
	SendCancelOTP(ctx context.Context, email, code string) SendResult
}

// sendFunc matches smtp.SendMail; tests swap it out.
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type smtpNotifier struct {
	cfg  *cfgpkg.Config
	log  *zap.SugaredLogger
	send sendFunc
}

func New(cfg *cfgpkg.Config, log *zap.SugaredLogger) Notifier {
	return &smtpNotifier{cfg: cfg, log: log, send: smtp.SendMail}
}

func (n *smtpNotifier) deliver(ctx context.Context, kind Kind, email, subject, body string) SendResult {
	res := SendResult{Kind: kind, Recipient: email}
	res.Err = n.sendMail(email, subject, body)

	outcome := "sent"
	if res.Suppressed() {
		outcome = "failed"
		logctx.FromCtx(ctx, n.log).Warnw("notification send failed",
			"kind", kind, "recipient", email, "err", res.Err)
	} else {
		logctx.FromCtx(ctx, n.log).Infow("notification sent", "kind", kind, "recipient", email)
	}
	metrics.NotificationSendsTotal.WithLabelValues(string(kind), outcome).Inc()
	return res
}

func (n *smtpNotifier) sendMail(recipient, subject, body string) error {
	smtpCfg := n.cfg.SMTP
	if smtpCfg.Host == "" || smtpCfg.Sender == "" {
		return fmt.Errorf("smtp is not configured")
	}
	addr := fmt.Sprintf("%s:%d", smtpCfg.Host, smtpCfg.Port)

	msg := []byte(fmt.Sprintf("To: %s\r\n"+
		"From: %s\r\n"+
		"Subject: %s\r\n"+
		"Content-Type: text/plain; charset=UTF-8\r\n"+
		"\r\n"+
		"%s\r\n", recipient, smtpCfg.Sender, subject, body))

	var a smtp.Auth
	if smtpCfg.Username != "" {
		a = smtp.PlainAuth("", smtpCfg.Username, smtpCfg.Password, smtpCfg.Host)
	}
	if err := n.send(addr, a, smtpCfg.Sender, []string{recipient}, msg); err != nil {
		return fmt.Errorf("smtp send to %s: %w", recipient, err)
	}
	return nil
}

func (n *smtpNotifier) SendWelcome(ctx context.Context, email, sessionToken string) SendResult {
	subject, body := welcomeMail(sessionToken)
	return n.deliver(ctx, KindWelcome, email, subject, body)
}

func (n *smtpNotifier) SendTrialEnded(ctx context.Context, email string) SendResult {
	subject, body := trialEndedMail()
	return n.deliver(ctx, KindTrialEnded, email, subject, body)
}

func (n *smtpNotifier) SendTrialWarning(ctx context.Context, email string, trialEnd *time.Time) SendResult {
	subject, body := trialWarningMail(trialEnd)
	return n.deliver(ctx, KindTrialWarning, email, subject, body)
}

func (n *smtpNotifier) SendCancellationScheduled(ctx context.Context, email string, periodEnd *time.Time) SendResult {
	subject, body := cancellationScheduledMail(periodEnd)
	return n.deliver(ctx, KindCancellationScheduled, email, subject, body)
}

func (n *smtpNotifier) SendCancellationComplete(ctx context.Context, email string, periodEnd *time.Time) SendResult {
	subject, body := cancellationCompleteMail(periodEnd)
	return n.deliver(ctx, KindCancellationComplete, email, subject, body)
}

func (n *smtpNotifier) SendPaymentFailed(ctx context.Context, email string) SendResult {
	subject, body := paymentFailedMail()
	return n.deliver(ctx, KindPaymentFailed, email, subject, body)
}

func (n *smtpNotifier) SendReceipt(ctx context.Context, email string, receipt *models.Receipt) SendResult {
	subject, body := receiptMail(receipt)
	return n.deliver(ctx, KindReceipt, email, subject, body)
}

func (n *smtpNotifier) SendCancelOTP(ctx context.Context, email, code string) SendResult {
	subject, body := cancelOTPMail(code)
	return n.deliver(ctx, KindCancelOTP, email, subject, body)
}

var Module = fx.Options(
	fx.Provide(New),
)
