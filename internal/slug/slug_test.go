package slug_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/atrium-auth/internal/slug"
)

func TestValidate(t *testing.T) {
	require.Empty(t, slug.Validate("acme"))
	require.Empty(t, slug.Validate("acme-corp-2"))

	require.Equal(t, []string{"slug is required"}, slug.Validate(""))

	require.NotEmpty(t, slug.Validate("Acme"))
	require.NotEmpty(t, slug.Validate("acme corp"))
	require.NotEmpty(t, slug.Validate("-acme"))
	require.NotEmpty(t, slug.Validate("acme-"))
	require.NotEmpty(t, slug.Validate("acme--corp"))
	require.NotEmpty(t, slug.Validate(strings.Repeat("a", 64)))

	errs := slug.Validate("admin")
	require.Len(t, errs, 1)
	require.Contains(t, errs[0], "reserved")
}

func TestValidateAccumulates(t *testing.T) {
	// Uppercase and invalid characters at once.
	errs := slug.Validate("Acme Corp")
	require.Len(t, errs, 2)
}

func TestSuggestSkipsTakenCandidates(t *testing.T) {
	taken := map[string]bool{"acme-2": true, "acme-4": true}
	got := slug.Suggest("acme", 3, func(s string) bool { return taken[s] })
	require.Equal(t, []string{"acme-3", "acme-5", "acme-6"}, got)
}

func TestSuggestDefaultsCount(t *testing.T) {
	got := slug.Suggest("acme", 0, nil)
	require.Equal(t, []string{"acme-2", "acme-3", "acme-4"}, got)
}
