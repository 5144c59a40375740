package token

import (
	"time"
)

// Claims is the decoded content of an access token. It is ephemeral and never
// persisted; validity is computed from the signature, expiry and blacklist.
type Claims struct {
	Subject   string // User ID the token was issued for
	JTI       string // Unique token ID for revocation
	IssuedAt  time.Time
	ExpiresAt time.Time
	Extra     map[string]any // Optional extra claims (roles, permissions)
}

// Reason categorises why an access token failed validation.
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonMalformed    Reason = "malformed"
	ReasonExpired      Reason = "expired"
	ReasonBadSignature Reason = "bad-signature"
	ReasonRevoked      Reason = "revoked"
)

// Validation is the structured result of validating an access token.
// Malformed or tampered input never produces a panic or bare error, only an
// invalid result with a reason.
type Validation struct {
	Valid  bool
	Claims *Claims
	Reason Reason
}
