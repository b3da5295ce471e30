package password_test

import (
	"strings"
	"testing"
	"unicode"

	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/atrium-auth/internal/password"
)

func TestCheckStrengthAccumulatesViolations(t *testing.T) {
	res := password.CheckStrength("weak")
	require.False(t, res.Valid)
	// Too short, no uppercase, no digit, no symbol.
	require.Len(t, res.Errors, 4)
}

func TestCheckStrengthWeakPattern(t *testing.T) {
	res := password.CheckStrength("Password123!")
	require.False(t, res.Valid)
	require.Len(t, res.Errors, 1)
	require.Contains(t, res.Errors[0], "weak pattern")
}

func TestCheckStrengthAccepts(t *testing.T) {
	res := password.CheckStrength("C0rrect-horse")
	require.True(t, res.Valid)
	require.Empty(t, res.Errors)
}

func TestCheckStrengthTooLong(t *testing.T) {
	res := password.CheckStrength("Aa1!" + strings.Repeat("x", 130))
	require.False(t, res.Valid)
	require.Contains(t, res.Errors[0], "at most 128")
}

func TestGenerateContainsEveryClass(t *testing.T) {
	for i := 0; i < 20; i++ {
		pw, err := password.Generate(16)
		require.NoError(t, err)
		require.Len(t, pw, 16)

		var hasLower, hasUpper, hasDigit, hasSymbol bool
		for _, r := range pw {
			switch {
			case unicode.IsLower(r):
				hasLower = true
			case unicode.IsUpper(r):
				hasUpper = true
			case unicode.IsDigit(r):
				hasDigit = true
			default:
				hasSymbol = true
			}
		}
		require.True(t, hasLower && hasUpper && hasDigit && hasSymbol, "generated %q", pw)
	}
}

func TestGenerateBumpsTinyLengths(t *testing.T) {
	pw, err := password.Generate(1)
	require.NoError(t, err)
	require.Len(t, pw, 16)
}
