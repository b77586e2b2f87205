package auth

import (
	"testing"

	"github.com/stretchr/testify/require"

	cfgpkg "github.com/karteai/billing/pkg/config"
)

func testMaker(t *testing.T) *Maker {
	t.Helper()
	m, err := NewMaker(&cfgpkg.Config{Auth: cfgpkg.AuthConfig{
		SessionSecret:   "test-secret",
		SessionTTLHours: 1,
		OTPTTLMinutes:   15,
	}})
	require.NoError(t, err)
	return m
}

func TestSessionRoundTrip(t *testing.T) {
	m := testMaker(t)

	token, err := m.IssueSession("Test@Example.COM")
	require.NoError(t, err)

	email, err := m.ParseSession(token)
	require.NoError(t, err)
	require.Equal(t, "test@example.com", email)
}

func TestParseSession_RejectsTamperedToken(t *testing.T) {
	m := testMaker(t)
	token, err := m.IssueSession("a@b.com")
	require.NoError(t, err)

	_, err = m.ParseSession(token + "x")
	require.Error(t, err)
}

func TestOTP_VerifyAndMismatch(t *testing.T) {
	m := testMaker(t)

	token, err := m.IssueOTP("user@example.com", "482913")
	require.NoError(t, err)

	require.NoError(t, m.VerifyOTP(token, "User@Example.com", "482913"))
	require.Error(t, m.VerifyOTP(token, "user@example.com", "000000"))
	require.Error(t, m.VerifyOTP(token, "other@example.com", "482913"))
}

func TestOTP_SessionTokenRejected(t *testing.T) {
	m := testMaker(t)
	session, err := m.IssueSession("user@example.com")
	require.NoError(t, err)
	require.Error(t, m.VerifyOTP(session, "user@example.com", "482913"))
}

func TestParseSession_RejectsOTPToken(t *testing.T) {
	m := testMaker(t)
	otp, err := m.IssueOTP("user@example.com", "482913")
	require.NoError(t, err)

	_, err = m.ParseSession(otp)
	require.Error(t, err)
}
