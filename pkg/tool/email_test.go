package tool

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeEmail(t *testing.T) {
	require.Equal(t, "test@example.com", NormalizeEmail("Test@Example.COM"))
	require.Equal(t, "test@example.com", NormalizeEmail("  test@example.com \n"))
	require.Equal(t, "", NormalizeEmail("   "))
}

func TestEmailRowKey_StableAndNormalized(t *testing.T) {
	k1 := EmailRowKey("Test@Example.COM")
	k2 := EmailRowKey("test@example.com")
	require.Equal(t, k1, k2)

	decoded, err := base64.StdEncoding.DecodeString(k1)
	require.NoError(t, err)
	require.Equal(t, "test@example.com", string(decoded))

	// deterministic across calls
	require.Equal(t, k1, EmailRowKey("Test@Example.COM"))
}
