package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/carvik/geodex/internal/identity"
)

const (
	defaultAuthURL  = "https://github.com/login/oauth/authorize"
	defaultTokenURL = "https://github.com/login/oauth/access_token"
	defaultAPIURL   = "https://api.github.com"
)

// ErrNoAccessToken indicates the provider answered the exchange but
// returned no token. Treated as a provider rejection, not a transport
// failure.
var ErrNoAccessToken = errors.New("token response missing access_token")

// Client performs the confidential half of the GitHub authorization
// code flow: code-for-token exchange and profile fetch. The endpoints
// are overridable so tests can point at a stub server.
type Client struct {
	oauth      *oauth2.Config
	apiBaseURL string
	httpClient *http.Client
}

// NewClient creates a GitHub client with the given app credentials.
func NewClient(clientID, clientSecret string) *Client {
	return &Client{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  defaultAuthURL,
				TokenURL: defaultTokenURL,
				// GitHub's token endpoint takes credentials as form
				// parameters, not HTTP Basic auth.
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		apiBaseURL: defaultAPIURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// WithEndpoints overrides the provider endpoints. Used in tests.
func (c *Client) WithEndpoints(tokenURL, apiBaseURL string) *Client {
	c.oauth.Endpoint.TokenURL = tokenURL
	c.apiBaseURL = apiBaseURL
	return c
}

// ExchangeCode exchanges a one-time authorization code for an access
// token. The code is single-use: GitHub rejects a second exchange of
// the same code, which surfaces here as an error.
func (c *Client) ExchangeCode(ctx context.Context, code string) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	token, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("code exchange failed: %w", err)
	}
	if token.AccessToken == "" {
		return "", ErrNoAccessToken
	}
	return token.AccessToken, nil
}

// FetchUser fetches the authenticated user's profile. A non-2xx
// response means GitHub rejected the token, which callers must treat
// as an authentication failure rather than a transport error.
func (c *Client) FetchUser(ctx context.Context, accessToken string) (*identity.GitHubUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBaseURL+"/user", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create user request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("user request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &TokenRejectedError{Status: resp.StatusCode, Body: string(body)}
	}

	var user identity.GitHubUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to decode user response: %w", err)
	}
	if user.ID == 0 {
		return nil, fmt.Errorf("user response missing id")
	}
	return &user, nil
}

// TokenRejectedError reports that the provider explicitly rejected the
// bearer token. Distinguished from transport errors so the middleware
// can answer 401 instead of 500.
type TokenRejectedError struct {
	Status int
	Body   string
}

func (e *TokenRejectedError) Error() string {
	return fmt.Sprintf("github rejected token with status %d", e.Status)
}
