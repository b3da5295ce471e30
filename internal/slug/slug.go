// Package slug validates organization slugs and proposes alternatives when
// the requested one is taken.
package slug

import (
	"fmt"
	"regexp"
	"strings"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// reserved slugs collide with routing or look official.
var reserved = map[string]struct{}{
	"admin":   {},
	"api":     {},
	"auth":    {},
	"app":     {},
	"www":     {},
	"system":  {},
	"support": {},
	"billing": {},
}

const maxLength = 63

// Validate returns every rule the candidate violates. A valid slug is
// lowercase [a-z0-9-], with no leading, trailing or consecutive hyphens.
func Validate(candidate string) []string {
	var errs []string
	if candidate == "" {
		return []string{"slug is required"}
	}
	if len(candidate) > maxLength {
		errs = append(errs, fmt.Sprintf("slug must be at most %d characters", maxLength))
	}
	if candidate != strings.ToLower(candidate) {
		errs = append(errs, "slug must be lowercase")
	}
	if !slugPattern.MatchString(strings.ToLower(candidate)) {
		errs = append(errs, "slug may only contain letters, digits and single hyphens, and may not start or end with a hyphen")
	}
	if _, ok := reserved[strings.ToLower(candidate)]; ok {
		errs = append(errs, "slug is reserved")
	}
	return errs
}

// Suggest derives numbered alternatives for a taken slug: base-2, base-3, …
// The taken set lets callers filter suggestions that are also in use.
func Suggest(base string, count int, taken func(string) bool) []string {
	if count <= 0 {
		count = 3
	}
	suggestions := make([]string, 0, count)
	for n := 2; len(suggestions) < count && n < 100; n++ {
		candidate := fmt.Sprintf("%s-%d", base, n)
		if taken != nil && taken(candidate) {
			continue
		}
		suggestions = append(suggestions, candidate)
	}
	return suggestions
}
