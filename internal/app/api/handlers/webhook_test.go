package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	subsvc "github.com/karteai/billing/internal/app/service/subscription"
	"github.com/karteai/billing/internal/platform/processor"
	"github.com/karteai/billing/pkg/auth"
	cfgpkg "github.com/karteai/billing/pkg/config"
	"github.com/karteai/billing/pkg/types"
)

type stubEventHandler struct {
	err     error
	handled int
}

func (s *stubEventHandler) Handle(_ context.Context, _ []byte, _ string) error {
	if s.err != nil {
		return s.err
	}
	s.handled++
	return nil
}

func TestApiProcessorWebhook_OK(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := &stubEventHandler{}
	r := gin.New()
	r.POST("/api/v1/billing/webhook", ApiProcessorWebhook(h, zap.NewNop().Sugar()))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/webhook", bytes.NewReader([]byte(`{"id":"evt_1"}`)))
	req.Header.Set("Stripe-Signature", "t=1,v1=sig")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"received":true}`, w.Body.String())
	require.Equal(t, 1, h.handled)
}

func TestApiProcessorWebhook_InvalidSignature(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := &stubEventHandler{err: fmt.Errorf("%w: bad header", processor.ErrInvalidSignature)}
	r := gin.New()
	r.POST("/api/v1/billing/webhook", ApiProcessorWebhook(h, zap.NewNop().Sugar()))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/webhook", bytes.NewReader([]byte(`{}`)))
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "invalid signature")
	require.Zero(t, h.handled)
}

func TestApiProcessorWebhook_HandlerError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := &stubEventHandler{err: fmt.Errorf("db down")}
	r := gin.New()
	r.POST("/api/v1/billing/webhook", ApiProcessorWebhook(h, zap.NewNop().Sugar()))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/webhook", bytes.NewReader([]byte(`{}`)))
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.JSONEq(t, `{"error":"db down"}`, w.Body.String())
}

func newAccessRouter(t *testing.T, store subsvc.Store) (*gin.Engine, *auth.Maker) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	maker, err := auth.NewMaker(&cfgpkg.Config{
		Auth: cfgpkg.AuthConfig{SessionSecret: "test-secret", SessionTTLHours: 1, OTPTTLMinutes: 10},
	})
	require.NoError(t, err)
	r := gin.New()
	grp := r.Group("/api/v1/billing")
	RegisterBillingRoutes(grp, store, maker, zap.NewNop().Sugar())
	return r, maker
}

func TestApiSubscriptionAccess(t *testing.T) {
	store := subsvc.NewMemoryStore()
	end := time.Now().Add(10 * 24 * time.Hour)
	_, _, err := store.Upsert(context.Background(), &subsvc.RecordUpdate{
		Email:            "user@example.com",
		Status:           types.SubscriptionStatusActive,
		CurrentPeriodEnd: &end,
		Reason:           types.SubscriptionChangeReasonCheckout,
	})
	require.NoError(t, err)

	r, maker := newAccessRouter(t, store)
	token, err := maker.IssueSession("User@Example.com")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/billing/subscription", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var info types.SubscriptionInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	require.True(t, info.Active)
	require.Equal(t, "active", info.Status)
	require.NotNil(t, info.Expiry)
}

func TestApiSubscriptionAccess_UnknownEmail(t *testing.T) {
	r, maker := newAccessRouter(t, subsvc.NewMemoryStore())
	token, err := maker.IssueSession("nobody@example.com")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/billing/subscription", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var info types.SubscriptionInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	require.False(t, info.Active)
	require.Equal(t, "inactive", info.Status)
	require.Nil(t, info.Expiry)
}

func TestApiSubscriptionAccess_MissingToken(t *testing.T) {
	r, _ := newAccessRouter(t, subsvc.NewMemoryStore())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/billing/subscription", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}
