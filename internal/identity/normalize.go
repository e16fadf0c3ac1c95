package identity

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken indicates a credential token that is malformed or
// missing required claims. Local and non-retryable.
var ErrInvalidToken = errors.New("invalid identity token")

// FromIDToken decodes a Google ID token's claims into an Identity.
//
// The signature is deliberately NOT verified here: the decoded claims
// are used for display and session bookkeeping only, and authority is
// established when the server-side middleware re-validates the token
// on each request. Do not "fix" this by verifying locally.
func FromIDToken(raw string) (*Identity, error) {
	parser := jwt.NewParser()

	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	email, _ := claims["email"].(string)
	if email == "" {
		return nil, fmt.Errorf("%w: missing email claim", ErrInvalidToken)
	}

	sub, _ := claims["sub"].(string)
	name, _ := claims["name"].(string)
	if name == "" {
		name = "User"
	}
	picture, _ := claims["picture"].(string)

	id := &Identity{
		ID:          sub,
		Email:       email,
		Name:        name,
		PictureURL:  picture,
		Provider:    ProviderGoogle,
		AccessToken: raw,
	}

	// exp is seconds since epoch; stored as milliseconds. Absent exp
	// means a non-expiring session.
	if exp, ok := claims["exp"].(float64); ok {
		id.TokenExpiry = int64(exp) * 1000
	}

	return id, nil
}

// GitHubUser is the subset of the GitHub user profile the normalizer
// consumes.
type GitHubUser struct {
	ID        int64   `json:"id"`
	Login     string  `json:"login"`
	Name      *string `json:"name"`
	Email     *string `json:"email"`
	AvatarURL string  `json:"avatar_url"`
}

// FromGitHubUser maps a GitHub profile plus the access token obtained
// by the code exchange into an Identity. GitHub may withhold the email
// (private email setting); a stable placeholder is synthesized so the
// Identity invariant holds.
func FromGitHubUser(u GitHubUser, accessToken string) *Identity {
	email := ""
	if u.Email != nil {
		email = *u.Email
	}
	if email == "" {
		email = fmt.Sprintf("user_%d@github.local", u.ID)
	}

	name := u.Login
	if u.Name != nil && *u.Name != "" {
		name = *u.Name
	}

	return &Identity{
		ID:          fmt.Sprintf("%d", u.ID),
		Email:       email,
		Name:        name,
		PictureURL:  u.AvatarURL,
		Provider:    ProviderGitHub,
		AccessToken: accessToken,
		// The code flow never reports an expiry.
	}
}
