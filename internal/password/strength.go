package password

import (
	"crypto/rand"
	"math/big"
	"strings"
	"unicode"
)

const (
	// MinLength and MaxLength bound acceptable password sizes.
	MinLength = 8
	MaxLength = 128
)

const (
	lowerChars  = "abcdefghijklmnopqrstuvwxyz"
	upperChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digitChars  = "0123456789"
	symbolChars = "!@#$%^&*()-_=+[]{};:,.<>?"
)

// weakTerms are matched as substrings, case-insensitively.
var weakTerms = []string{
	"password",
	"passwort",
	"qwerty",
	"123456",
	"abc123",
	"letmein",
	"welcome",
	"admin",
	"iloveyou",
	"monkey",
	"dragon",
}

// StrengthResult reports every rule a candidate password violated.
type StrengthResult struct {
	Valid  bool
	Errors []string
}

// CheckStrength validates a candidate password against the policy. All
// violated rules are accumulated rather than returning on the first failure.
func CheckStrength(candidate string) StrengthResult {
	var errs []string

	if len(candidate) < MinLength {
		errs = append(errs, "password must be at least 8 characters long")
	}
	if len(candidate) > MaxLength {
		errs = append(errs, "password must be at most 128 characters long")
	}

	var hasLower, hasUpper, hasDigit, hasSymbol bool
	for _, r := range candidate {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSymbol = true
		}
	}
	if !hasLower {
		errs = append(errs, "password must contain a lowercase letter")
	}
	if !hasUpper {
		errs = append(errs, "password must contain an uppercase letter")
	}
	if !hasDigit {
		errs = append(errs, "password must contain a digit")
	}
	if !hasSymbol {
		errs = append(errs, "password must contain a symbol")
	}

	lowered := strings.ToLower(candidate)
	for _, term := range weakTerms {
		if strings.Contains(lowered, term) {
			errs = append(errs, "password contains a common weak pattern")
			break
		}
	}

	return StrengthResult{Valid: len(errs) == 0, Errors: errs}
}

// Generate returns a random password of the requested length containing at
// least one character from each class. Lengths below four are bumped to 16.
func Generate(length int) (string, error) {
	if length < 4 {
		length = 16
	}
	all := lowerChars + upperChars + digitChars + symbolChars

	out := make([]byte, 0, length)
	for _, class := range []string{lowerChars, upperChars, digitChars, symbolChars} {
		c, err := randomChar(class)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}
	for len(out) < length {
		c, err := randomChar(all)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}

	// Fisher-Yates so the guaranteed class characters are not positional.
	for i := len(out) - 1; i > 0; i-- {
		j, err := randomInt(i + 1)
		if err != nil {
			return "", err
		}
		out[i], out[j] = out[j], out[i]
	}
	return string(out), nil
}

func randomChar(set string) (byte, error) {
	i, err := randomInt(len(set))
	if err != nil {
		return 0, err
	}
	return set[i], nil
}

func randomInt(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}
