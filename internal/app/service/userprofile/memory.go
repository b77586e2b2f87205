package userprofile

import (
	"context"
	"sync"
	"time"

	"github.com/karteai/billing/internal/models"
	"github.com/karteai/billing/pkg/tool"
)

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*models.UserRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*models.UserRecord)}
}

func (m *MemoryStore) Get(_ context.Context, email string) (*models.UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[tool.EmailRowKey(email)]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *MemoryStore) MergeUpsert(_ context.Context, upd *ProfileUpdate) (*models.UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email := tool.NormalizeEmail(upd.Email)
	rowKey := tool.EmailRowKey(email)
	rec, ok := m.records[rowKey]
	if !ok {
		rec = &models.UserRecord{RowKey: rowKey, Email: email, CreatedAt: time.Now()}
		m.records[rowKey] = rec
	}
	mergeProfile(rec, upd)
	rec.UpdatedAt = time.Now()
	cp := *rec
	return &cp, nil
}

func (m *MemoryStore) SetCancelOTP(ctx context.Context, email, token string, at time.Time) error {
	if _, err := m.MergeUpsert(ctx, &ProfileUpdate{Email: email}); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.records[tool.EmailRowKey(email)]
	rec.CancelOTPToken = token
	rec.CancelOTPIssuedAt = &at
	return nil
}

func (m *MemoryStore) ClearCancelOTP(_ context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[tool.EmailRowKey(email)]; ok {
		rec.CancelOTPToken = ""
		rec.CancelOTPIssuedAt = nil
	}
	return nil
}
