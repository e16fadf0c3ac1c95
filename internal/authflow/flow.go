package authflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/carvik/geodex/internal/identity"
	"github.com/carvik/geodex/internal/session"
)

// Flow error taxonomy. Exchange and profile failures are retryable by
// restarting the flow from Idle with a fresh code, never by re-using
// the same code. Configuration errors are fatal to the flow and must
// stay distinguishable from "provider down".
var (
	ErrExchangeFailed       = errors.New("authorization code exchange failed")
	ErrProfileFetchFailed   = errors.New("profile fetch failed")
	ErrConfigurationMissing = errors.New("oauth configuration missing")
)

// State is the position of the authorization-code flow.
type State int

const (
	StateIdle State = iota
	StateRedirecting
	StateAwaitingExchange
	StateAuthenticated
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRedirecting:
		return "redirecting"
	case StateAwaitingExchange:
		return "awaiting-exchange"
	case StateAuthenticated:
		return "authenticated"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Config holds what the client half of the code flow needs. The client
// never sees the provider secret; the exchange happens at the server's
// confidential endpoint.
type Config struct {
	ClientID    string
	RedirectURI string
	Scope       string
	// ExchangeURL is the server's confidential code-exchange endpoint.
	ExchangeURL string
}

// Flow drives one authorization-code login round trip:
// Idle -> Redirecting -> AwaitingExchange -> Authenticated, with
// Failed as the recoverable terminal state (Reset returns to Idle).
type Flow struct {
	cfg        Config
	store      *session.Store
	httpClient *http.Client

	state      State
	code       string
	failReason string
}

// NewFlow creates a flow in the Idle state.
func NewFlow(cfg Config, store *session.Store) *Flow {
	return &Flow{
		cfg:        cfg,
		store:      store,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		state:      StateIdle,
	}
}

// State returns the flow's current state.
func (f *Flow) State() State { return f.state }

// FailReason returns the human-readable reason for the last failure.
func (f *Flow) FailReason() string { return f.failReason }

// Reset returns a failed or completed flow to Idle so login can be
// retried with a fresh authorization code.
func (f *Flow) Reset() {
	f.state = StateIdle
	f.code = ""
	f.failReason = ""
}

// BuildAuthorizeURL constructs the provider consent URL. Pure so the
// navigation step, which leaves process control, stays testable.
func BuildAuthorizeURL(authEndpoint, clientID, redirectURI, scope string) (string, error) {
	if clientID == "" {
		return "", fmt.Errorf("%w: client id not set", ErrConfigurationMissing)
	}
	if redirectURI == "" {
		return "", fmt.Errorf("%w: redirect uri not set", ErrConfigurationMissing)
	}

	params := url.Values{}
	params.Set("client_id", clientID)
	params.Set("redirect_uri", redirectURI)
	params.Set("scope", scope)
	return authEndpoint + "?" + params.Encode(), nil
}

const githubAuthorizeEndpoint = "https://github.com/login/oauth/authorize"

// Start transitions Idle -> Redirecting and returns the URL the user
// must visit. The caller performs the actual navigation.
func (f *Flow) Start() (string, error) {
	if f.state != StateIdle {
		return "", fmt.Errorf("cannot start login from state %s", f.state)
	}

	authURL, err := BuildAuthorizeURL(githubAuthorizeEndpoint, f.cfg.ClientID, f.cfg.RedirectURI, f.cfg.Scope)
	if err != nil {
		f.fail(err.Error())
		return "", err
	}

	f.state = StateRedirecting
	return authURL, nil
}

// HandleCallback consumes the provider's redirect-back query exactly
// once. A provider error short-circuits to Failed with no exchange
// attempted. The caller must have stripped the query from any visible
// surface before retrying, so a replayed callback is an error here.
func (f *Flow) HandleCallback(query url.Values) error {
	if f.state != StateRedirecting {
		return fmt.Errorf("unexpected callback in state %s", f.state)
	}

	if errCode := query.Get("error"); errCode != "" {
		log.Printf("Login: provider declined consent: %s", errCode)
		f.fail("provider returned error: " + errCode)
		return fmt.Errorf("%w: %s", ErrExchangeFailed, errCode)
	}

	code := query.Get("code")
	if code == "" {
		f.fail("callback carried neither code nor error")
		return fmt.Errorf("%w: callback missing code", ErrExchangeFailed)
	}

	f.code = code
	f.state = StateAwaitingExchange
	return nil
}

// exchangeResponse is the consolidated result of the server's exchange
// endpoint: token plus profile in one hop from the client's view.
type exchangeResponse struct {
	Success     bool    `json:"success"`
	AccessToken string  `json:"access_token"`
	GitHubID    int64   `json:"github_id"`
	Login       string  `json:"login"`
	Name        *string `json:"name"`
	Email       *string `json:"email"`
	AvatarURL   string  `json:"avatar_url"`

	Message string `json:"message,omitempty"`
	Stage   string `json:"stage,omitempty"`
}

// Exchange sends the one-time code to the confidential exchange
// endpoint, normalizes the result and persists the session. The
// pending code is consumed whether or not the exchange succeeds; a
// retry needs a fresh consent round trip.
func (f *Flow) Exchange(ctx context.Context) (*identity.Identity, error) {
	if f.state != StateAwaitingExchange {
		return nil, fmt.Errorf("no pending authorization code in state %s", f.state)
	}

	code := f.code
	f.code = ""

	body, _ := json.Marshal(map[string]string{"code": code})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.cfg.ExchangeURL, bytes.NewReader(body))
	if err != nil {
		f.fail("failed to build exchange request")
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		// Transport errors stay behind the taxonomy; a timeout is a
		// retryable failure, not a crash.
		f.fail("exchange endpoint unreachable")
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	defer resp.Body.Close()

	var result exchangeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		f.fail("exchange endpoint returned malformed response")
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}

	if resp.StatusCode != http.StatusOK || !result.Success {
		reason := result.Message
		if reason == "" {
			reason = fmt.Sprintf("exchange endpoint returned status %d", resp.StatusCode)
		}
		f.fail(reason)
		if result.Stage == "profile" {
			return nil, fmt.Errorf("%w: %s", ErrProfileFetchFailed, reason)
		}
		return nil, fmt.Errorf("%w: %s", ErrExchangeFailed, reason)
	}

	if result.AccessToken == "" {
		f.fail("exchange succeeded but no access token returned")
		return nil, fmt.Errorf("%w: missing access token", ErrExchangeFailed)
	}

	id := identity.FromGitHubUser(identity.GitHubUser{
		ID:        result.GitHubID,
		Login:     result.Login,
		Name:      result.Name,
		Email:     result.Email,
		AvatarURL: result.AvatarURL,
	}, result.AccessToken)

	if err := f.store.Save(id); err != nil {
		f.fail("failed to persist session")
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	log.Printf("Login: authenticated as %s via github (token %s)", id.Email, id.RedactedToken())
	f.state = StateAuthenticated
	return id, nil
}

func (f *Flow) fail(reason string) {
	f.state = StateFailed
	f.failReason = reason
}

// LoginWithIDToken is the credential-token flow: a pre-issued signed
// identity token is decoded locally and persisted, no network hop.
// The server-side middleware remains the actual trust boundary.
func LoginWithIDToken(store *session.Store, raw string) (*identity.Identity, error) {
	id, err := identity.FromIDToken(raw)
	if err != nil {
		return nil, err
	}
	if err := store.Save(id); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}
	log.Printf("Login: authenticated as %s via google", id.Email)
	return id, nil
}
