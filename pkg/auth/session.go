package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
	"go.uber.org/fx"

	cfgpkg "github.com/karteai/billing/pkg/config"
	"github.com/karteai/billing/pkg/tool"
)

const issuer = "karte-billing"

// Maker issues and parses the signed tokens used by the service: the
// long-lived session credential handed out after checkout, and the
// short-lived OTP token backing the cancellation-confirmation flow.
type Maker struct {
	secret     []byte
	sessionTTL time.Duration
	otpTTL     time.Duration
}

func NewMaker(cfg *cfgpkg.Config) (*Maker, error) {
	if cfg.Auth.SessionSecret == "" {
		return nil, fmt.Errorf("auth session secret is empty")
	}
	return &Maker{
		secret:     []byte(cfg.Auth.SessionSecret),
		sessionTTL: cfg.SessionTTL(),
		otpTTL:     cfg.OTPTTL(),
	}, nil
}

// IssueSession returns a bearer credential bound to a normalized email.
func (m *Maker) IssueSession(email string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": issuer,
		"sub": tool.NormalizeEmail(email),
		"iat": now.Unix(),
		"exp": now.Add(m.sessionTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// ParseSession validates a bearer credential and returns the email it is
// bound to.
func (m *Maker) ParseSession(token string) (string, error) {
	claims, err := m.parse(token)
	if err != nil {
		return "", err
	}
	// OTP tokens share the secret but must not double as a session.
	if kind, _ := claims["kind"].(string); kind != "" {
		return "", fmt.Errorf("not a session token")
	}
	email, _ := claims["sub"].(string)
	if email == "" {
		return "", fmt.Errorf("token has no subject")
	}
	return email, nil
}

// IssueOTP returns a token carrying the hash of a one-time code. The code
// itself is mailed to the user; only its hash is persisted.
func (m *Maker) IssueOTP(email, code string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":  issuer,
		"sub":  tool.NormalizeEmail(email),
		"iat":  now.Unix(),
		"exp":  now.Add(m.otpTTL).Unix(),
		"otp":  HashCode(code),
		"kind": "cancel_otp",
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// VerifyOTP checks a stored OTP token against a user-supplied code.
func (m *Maker) VerifyOTP(token, email, code string) error {
	claims, err := m.parse(token)
	if err != nil {
		return err
	}
	if kind, _ := claims["kind"].(string); kind != "cancel_otp" {
		return fmt.Errorf("not an otp token")
	}
	if sub, _ := claims["sub"].(string); sub != tool.NormalizeEmail(email) {
		return fmt.Errorf("otp token issued for a different address")
	}
	if hash, _ := claims["otp"].(string); hash != HashCode(code) {
		return fmt.Errorf("code mismatch")
	}
	return nil
}

func (m *Maker) parse(token string) (jwt.MapClaims, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// HashCode hashes a one-time code for embedding in an OTP token.
func HashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

var Module = fx.Options(
	fx.Provide(NewMaker),
)
