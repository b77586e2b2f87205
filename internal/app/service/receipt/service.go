package receipt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/karteai/billing/internal/models"
	"github.com/karteai/billing/internal/platform/processor"
	"github.com/karteai/billing/pkg/logctx"
	"github.com/karteai/billing/pkg/tool"
)

// Issuer creates receipt entities for paid invoices.
type Issuer interface {
	// IssueForInvoice writes a receipt for a paid invoice. The write is
	// idempotent on the processor invoice id; created reports whether a new
	// receipt was made.
	IssueForInvoice(ctx context.Context, email string, inv *processor.InvoicePayload) (rec *models.Receipt, created bool, err error)
}

type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewService(db *gorm.DB, log *zap.SugaredLogger) *Service {
	return &Service{db: db, log: log}
}

func (s *Service) IssueForInvoice(ctx context.Context, email string, inv *processor.InvoicePayload) (*models.Receipt, bool, error) {
	if inv == nil || inv.ID == "" {
		return nil, false, fmt.Errorf("invoice payload is empty")
	}
	email = tool.NormalizeEmail(email)

	var existing models.Receipt
	err := s.db.WithContext(ctx).Where("processor_invoice_id = ?", inv.ID).First(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("failed to look up receipt: %w", err)
	}

	rec := Build(email, inv, time.Now())
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, false, fmt.Errorf("failed to create receipt: %w", err)
	}
	logctx.FromCtx(ctx, s.log).Infow("receipt issued", "email", email, "invoice_id", inv.ID, "number", rec.Number)
	return rec, true, nil
}

// ListByEmail returns a user's receipts, newest first.
func (s *Service) ListByEmail(ctx context.Context, email string) ([]*models.Receipt, error) {
	var recs []*models.Receipt
	err := s.db.WithContext(ctx).
		Where("row_key = ?", tool.EmailRowKey(email)).
		Order("issued_at desc").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}
	return recs, nil
}

// Build assembles the receipt entity and its plain-text document.
func Build(email string, inv *processor.InvoicePayload, issuedAt time.Time) *models.Receipt {
	id := tool.GenerateUUIDV7()
	number := inv.Number
	if number == "" {
		number = fmt.Sprintf("KRT-%s-%s", issuedAt.Format("20060102"), strings.ToUpper(id[:8]))
	}

	rec := &models.Receipt{
		ID:                      id,
		RowKey:                  tool.EmailRowKey(email),
		Email:                   tool.NormalizeEmail(email),
		ProcessorInvoiceID:      inv.ID,
		ProcessorSubscriptionID: inv.Subscription,
		Number:                  number,
		AmountPaid:              inv.AmountPaid,
		Currency:                strings.ToUpper(inv.Currency),
		IssuedAt:                issuedAt,
	}
	if inv.PeriodStart > 0 {
		t := time.Unix(inv.PeriodStart, 0).UTC()
		rec.PeriodStart = &t
	}
	if inv.PeriodEnd > 0 {
		t := time.Unix(inv.PeriodEnd, 0).UTC()
		rec.PeriodEnd = &t
	}
	rec.Document = renderDocument(rec)
	return rec
}

func renderDocument(rec *models.Receipt) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Receipt %s\n", rec.Number)
	fmt.Fprintf(&b, "Issued: %s\n", rec.IssuedAt.Format("2006-01-02"))
	fmt.Fprintf(&b, "Billed to: %s\n\n", rec.Email)
	fmt.Fprintf(&b, "Karte AI+ subscription\n")
	if rec.PeriodStart != nil && rec.PeriodEnd != nil {
		fmt.Fprintf(&b, "Service period: %s to %s\n",
			rec.PeriodStart.Format("2006-01-02"), rec.PeriodEnd.Format("2006-01-02"))
	}
	fmt.Fprintf(&b, "Amount paid: %s %s\n", formatAmount(rec.AmountPaid, rec.Currency), rec.Currency)
	fmt.Fprintf(&b, "\nInvoice reference: %s\n", rec.ProcessorInvoiceID)
	return b.String()
}

// formatAmount renders a minor-unit amount. JPY has no minor unit; everything
// else the processor bills in hundredths.
func formatAmount(minor int64, currency string) string {
	if strings.EqualFold(currency, "JPY") {
		return fmt.Sprintf("%d", minor)
	}
	return fmt.Sprintf("%d.%02d", minor/100, minor%100)
}

var Module = fx.Options(
	fx.Provide(NewService),
	fx.Provide(func(s *Service) Issuer { return s }),
)
