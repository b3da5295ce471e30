package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// EventType discriminates authentication lifecycle events.
type EventType string

const (
	UserLoggedIn               EventType = "UserLoggedIn"
	UserLoginFailed            EventType = "UserLoginFailed"
	AuthSessionCreated         EventType = "AuthSessionCreated"
	AuthSessionEnded           EventType = "AuthSessionEnded"
	TokenRefreshed             EventType = "TokenRefreshed"
	RefreshTokenRevoked        EventType = "RefreshTokenRevoked"
	SessionExpired             EventType = "SessionExpired"
	OrganizationCreated        EventType = "OrganizationCreated"
	UserCreated                EventType = "UserCreated"
	OrganizationSignupComplete EventType = "OrganizationSignupCompleted"
	UserLogout                 EventType = "UserLogout"
)

// Context is the envelope attached to every event. PII never enters it in
// plaintext: IP and user agent are stored as one-way hashes.
type Context struct {
	SessionID     string `json:"session_id,omitempty"`
	CorrelationID string `json:"correlation_id"`
	CausationID   string `json:"causation_id,omitempty"`
	IPHash        string `json:"ip_hash,omitempty"`
	UserAgentHash string `json:"user_agent_hash,omitempty"`
	UserID        int64  `json:"user_id,omitempty"`
	OrgID         int64  `json:"organization_id,omitempty"`
}

// Event is a single append-only audit record.
type Event struct {
	Type       EventType         `json:"event_type"`
	OccurredAt time.Time         `json:"occurred_at"`
	Context    Context           `json:"context"`
	Payload    map[string]string `json:"payload,omitempty"`
}

// HashPII produces the one-way digest used for emails, IPs and user agents
// before they enter the audit trail. Empty input stays empty so optional
// fields are omitted rather than hashed into noise.
func HashPII(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
