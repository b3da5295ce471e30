package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"
)

// Token type claim values. The type claim is what keeps an access token from
// being replayed against the refresh endpoint and vice versa.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// ErrInvalidToken covers every validation failure: bad signature, expiry,
// malformed payload, wrong type claim. Callers get no finer detail.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the custom JWT payload shared by both token types. Wire names
// are fixed for interop with other verifiers.
type Claims struct {
	OrganizationID string `json:"organizationId,omitempty"`
	TokenID        string `json:"tokenId,omitempty"`
	TokenType      string `json:"type"`
}

// Pair carries the two signed tokens along with their expirations.
type Pair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	ExpiresIn        int
}

// Access is the result of validating an access token.
type Access struct {
	UserID int64
	OrgID  int64
}

// Refresh is the result of validating a refresh token.
type Refresh struct {
	UserID  int64
	OrgID   int64
	TokenID string
}

// Codec signs and validates the paired access/refresh tokens with a single
// shared HMAC secret.
type Codec struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// Option configures optional Codec behavior.
type Option func(*Codec)

// WithClock overrides the time source, useful in tests.
func WithClock(fn func() time.Time) Option {
	return func(c *Codec) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewCodec builds a Codec. An empty secret is a configuration error; callers
// must treat it as fatal at startup rather than retrying per request.
func NewCodec(secret string, accessTTL, refreshTTL time.Duration, opts ...Option) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("token: signing secret is required")
	}
	c := &Codec{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// IssuePair builds a signed access/refresh token pair sharing one issued-at
// instant. The refresh token embeds the persisted record's id as tokenId.
func (c *Codec) IssuePair(userID, orgID int64, refreshTokenID string) (Pair, error) {
	now := c.now().UTC()
	accessExp := now.Add(c.accessTTL)
	refreshExp := now.Add(c.refreshTTL)

	access, err := c.sign(userID, orgID, now, accessExp, Claims{
		OrganizationID: formatOrgID(orgID),
		TokenType:      TypeAccess,
	})
	if err != nil {
		return Pair{}, fmt.Errorf("sign access token: %w", err)
	}

	refresh, err := c.sign(userID, orgID, now, refreshExp, Claims{
		OrganizationID: formatOrgID(orgID),
		TokenID:        refreshTokenID,
		TokenType:      TypeRefresh,
	})
	if err != nil {
		return Pair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	return Pair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
		ExpiresIn:        int(c.accessTTL.Seconds()),
	}, nil
}

// ValidateAccess verifies signature, expiry and the access type claim.
func (c *Codec) ValidateAccess(raw string) (Access, error) {
	userID, orgID, custom, err := c.verify(raw)
	if err != nil {
		return Access{}, err
	}
	if custom.TokenType != TypeAccess {
		return Access{}, ErrInvalidToken
	}
	return Access{UserID: userID, OrgID: orgID}, nil
}

// ValidateRefresh verifies signature, expiry, the refresh type claim and the
// presence of the token identity claim.
func (c *Codec) ValidateRefresh(raw string) (Refresh, error) {
	userID, orgID, custom, err := c.verify(raw)
	if err != nil {
		return Refresh{}, err
	}
	if custom.TokenType != TypeRefresh || custom.TokenID == "" {
		return Refresh{}, ErrInvalidToken
	}
	return Refresh{UserID: userID, OrgID: orgID, TokenID: custom.TokenID}, nil
}

func (c *Codec) sign(userID, orgID int64, issuedAt, expiresAt time.Time, custom Claims) (string, error) {
	signer, err := gojose.NewSigner(
		gojose.SigningKey{Algorithm: gojose.HS256, Key: c.secret},
		(&gojose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("new signer: %w", err)
	}

	std := gojwt.Claims{
		Subject:  strconv.FormatInt(userID, 10),
		IssuedAt: gojwt.NewNumericDate(issuedAt),
		Expiry:   gojwt.NewNumericDate(expiresAt),
	}
	return gojwt.Signed(signer).Claims(std).Claims(custom).Serialize()
}

func (c *Codec) verify(raw string) (int64, int64, Claims, error) {
	parsed, err := gojwt.ParseSigned(raw, []gojose.SignatureAlgorithm{gojose.HS256})
	if err != nil {
		return 0, 0, Claims{}, ErrInvalidToken
	}

	var std gojwt.Claims
	var custom Claims
	if err := parsed.Claims(c.secret, &std, &custom); err != nil {
		return 0, 0, Claims{}, ErrInvalidToken
	}
	if err := std.ValidateWithLeeway(gojwt.Expected{Time: c.now()}, 0); err != nil {
		return 0, 0, Claims{}, ErrInvalidToken
	}

	userID, err := strconv.ParseInt(std.Subject, 10, 64)
	if err != nil {
		return 0, 0, Claims{}, ErrInvalidToken
	}
	var orgID int64
	if custom.OrganizationID != "" {
		orgID, err = strconv.ParseInt(custom.OrganizationID, 10, 64)
		if err != nil {
			return 0, 0, Claims{}, ErrInvalidToken
		}
	}
	return userID, orgID, custom, nil
}

func formatOrgID(orgID int64) string {
	if orgID == 0 {
		return ""
	}
	return strconv.FormatInt(orgID, 10)
}
