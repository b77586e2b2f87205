package receipt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/karteai/billing/internal/platform/processor"
	"github.com/karteai/billing/pkg/tool"
)

func TestBuild_DocumentAndFields(t *testing.T) {
	issued := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	rec := Build("Doctor@Clinic.JP", &processor.InvoicePayload{
		ID:           "in_123",
		Subscription: "sub_1",
		Number:       "INV-0042",
		AmountPaid:   1980,
		Currency:     "jpy",
		PeriodStart:  time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC).Unix(),
		PeriodEnd:    time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC).Unix(),
	}, issued)

	require.Equal(t, "doctor@clinic.jp", rec.Email)
	require.Equal(t, tool.EmailRowKey("doctor@clinic.jp"), rec.RowKey)
	require.Equal(t, "INV-0042", rec.Number)
	require.Equal(t, "JPY", rec.Currency)
	require.Contains(t, rec.Document, "INV-0042")
	require.Contains(t, rec.Document, "1980 JPY")
	require.Contains(t, rec.Document, "2026-04-01 to 2026-05-01")
}

func TestBuild_GeneratesNumberWhenMissing(t *testing.T) {
	rec := Build("a@b.com", &processor.InvoicePayload{ID: "in_1", AmountPaid: 500, Currency: "usd"}, time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC))
	require.Contains(t, rec.Number, "KRT-20260402-")
	require.Contains(t, rec.Document, "5.00 USD")
}
