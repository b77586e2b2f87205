package subscription

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/karteai/billing/internal/models"
	"github.com/karteai/billing/pkg/tool"
	"github.com/karteai/billing/pkg/types"
)

// MemoryStore is an in-process Store sharing applyUpdate with the gorm
// Service, so tests of webhook dispatch and reconciliation exercise the real
// upsert semantics.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*models.SubscriptionRecord
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*models.SubscriptionRecord)}
}

func (m *MemoryStore) Get(_ context.Context, email string) (*models.SubscriptionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[tool.EmailRowKey(email)]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *MemoryStore) Upsert(_ context.Context, upd *RecordUpdate) (*models.SubscriptionRecord, *models.SubscriptionRecord, error) {
	email := tool.NormalizeEmail(upd.Email)
	if email == "" {
		return nil, nil, fmt.Errorf("upsert requires an email")
	}
	rowKey := tool.EmailRowKey(email)

	m.mu.Lock()
	defer m.mu.Unlock()

	var before *models.SubscriptionRecord
	var after models.SubscriptionRecord
	if existing, ok := m.records[rowKey]; ok {
		cp := *existing
		before = &cp
		after = *existing
	} else {
		after = models.SubscriptionRecord{RowKey: rowKey, Email: email, CreatedAt: time.Now()}
	}

	applyUpdate(&after, upd, time.Now())
	after.UpdatedAt = time.Now()

	stored := after
	m.records[rowKey] = &stored
	cp := after
	return before, &cp, nil
}

func (m *MemoryStore) MarkCancelNoticeSent(_ context.Context, email string, at time.Time) error {
	return m.mark(email, func(rec *models.SubscriptionRecord) { rec.CancelNoticeSentAt = &at })
}

func (m *MemoryStore) MarkTrialWarningSent(_ context.Context, email string, at time.Time) error {
	return m.mark(email, func(rec *models.SubscriptionRecord) { rec.TrialWarningSentAt = &at })
}

func (m *MemoryStore) mark(email string, fn func(*models.SubscriptionRecord)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[tool.EmailRowKey(email)]
	if !ok {
		return fmt.Errorf("no record for %s", email)
	}
	fn(rec)
	return nil
}

func (m *MemoryStore) ListTrialWarningDue(_ context.Context, cutoffDate string) ([]*models.SubscriptionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.SubscriptionRecord
	for _, rec := range m.records {
		if rec.Status == types.SubscriptionStatusTrialing &&
			rec.TrialWarningSentAt == nil &&
			rec.CreatedDate != "" && rec.CreatedDate <= cutoffDate {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}
