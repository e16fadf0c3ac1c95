package identity

import "time"

// Provider identifies which credential path produced an identity.
type Provider string

const (
	ProviderGoogle Provider = "google"
	ProviderGitHub Provider = "github"
	ProviderAPIKey Provider = "api-key"
)

// Valid reports whether p is one of the known providers.
func (p Provider) Valid() bool {
	switch p {
	case ProviderGoogle, ProviderGitHub, ProviderAPIKey:
		return true
	}
	return false
}

// Identity is the canonical principal produced by either login flow.
// ID and Email are always non-empty once constructed.
type Identity struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	Name        string   `json:"name"`
	PictureURL  string   `json:"picture_url,omitempty"`
	Provider    Provider `json:"provider"`
	AccessToken string   `json:"access_token"`
	// TokenExpiry is epoch milliseconds; 0 means the token never expires.
	TokenExpiry int64 `json:"token_expiry,omitempty"`
}

// Expired reports whether the identity's token has passed its expiry.
// Identities without an expiry never expire.
func (i *Identity) Expired(now time.Time) bool {
	if i.TokenExpiry == 0 {
		return false
	}
	return i.TokenExpiry <= now.UnixMilli()
}

// RedactedToken returns a loggable form of the access token. The full
// token must never appear in logs.
func (i *Identity) RedactedToken() string {
	return Redact(i.AccessToken)
}

// Redact truncates a secret for logging.
func Redact(secret string) string {
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "****"
}
