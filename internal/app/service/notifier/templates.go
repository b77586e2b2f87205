package notifier

import (
	"fmt"
	"time"

	"github.com/karteai/billing/internal/models"
)

const productName = "Karte AI+"

func formatDay(t *time.Time) string {
	if t == nil {
		return "the end of your current period"
	}
	return t.Format("2006-01-02")
}

func welcomeMail(sessionToken string) (string, string) {
	subject := fmt.Sprintf("Welcome to %s", productName)
	body := fmt.Sprintf(`Thank you for subscribing to %s.

Your access key is below. Paste it into the extension's settings screen to
sign in on this device:

%s

Keep this key private; anyone holding it can use your subscription.
`, productName, sessionToken)
	return subject, body
}

func trialEndedMail() (string, string) {
	subject := fmt.Sprintf("Your %s trial has ended", productName)
	body := fmt.Sprintf(`Your free trial of %s has ended and your paid subscription is now
active. No action is needed — this mail is just a heads-up that billing has
started.
`, productName)
	return subject, body
}

func trialWarningMail(trialEnd *time.Time) (string, string) {
	subject := fmt.Sprintf("Your %s trial ends soon", productName)
	body := fmt.Sprintf(`Your free trial of %s ends on %s. After that your card will be
charged for the first billing period. If you do not wish to continue, you can
cancel any time before then from the account screen.
`, productName, formatDay(trialEnd))
	return subject, body
}

func cancellationScheduledMail(periodEnd *time.Time) (string, string) {
	subject := fmt.Sprintf("%s cancellation scheduled", productName)
	body := fmt.Sprintf(`Your %s subscription is scheduled to cancel. You keep full access
until %s; after that your subscription will not renew.

If this was a mistake you can resume the subscription from the account screen
before the period ends.
`, productName, formatDay(periodEnd))
	return subject, body
}

func cancellationCompleteMail(periodEnd *time.Time) (string, string) {
	subject := fmt.Sprintf("Your %s subscription has been canceled", productName)
	body := fmt.Sprintf(`Your %s subscription has been canceled. Any remaining access ends
on %s. We would love to have you back — resubscribing takes a minute from the
website.
`, productName, formatDay(periodEnd))
	return subject, body
}

func paymentFailedMail() (string, string) {
	subject := fmt.Sprintf("%s payment failed", productName)
	body := fmt.Sprintf(`A payment for your %s subscription failed. We will retry
automatically; please check that your card details are up to date to avoid an
interruption.
`, productName)
	return subject, body
}

func receiptMail(receipt *models.Receipt) (string, string) {
	subject := fmt.Sprintf("%s receipt %s", productName, receipt.Number)
	return subject, receipt.Document
}

func cancelOTPMail(code string) (string, string) {
	subject := fmt.Sprintf("%s cancellation confirmation code", productName)
	body := fmt.Sprintf(`Enter this code to confirm the cancellation of your %s
subscription:

    %s

The code expires shortly. If you did not request a cancellation you can ignore
this mail; nothing changes without the code.
`, productName, code)
	return subject, body
}
