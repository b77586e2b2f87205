package tool

import (
	"encoding/base64"
	"strings"
)

// NormalizeEmail trims and lower-cases an address. Every store access goes
// through this so case-variant emails can never produce two records.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// EmailRowKey returns the store row key for an address: the base64 encoding of
// the normalized email. The encoding is a persisted-state contract; existing
// rows are addressed this way.
func EmailRowKey(email string) string {
	return base64.StdEncoding.EncodeToString([]byte(NormalizeEmail(email)))
}
