package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/carvik/geodex/internal/config"
	"github.com/carvik/geodex/internal/github"
	"github.com/carvik/geodex/internal/identity"
	"github.com/carvik/geodex/internal/storage"
)

// GitHubExchanger performs the confidential half of the code flow.
// Satisfied by *github.Client.
type GitHubExchanger interface {
	ExchangeCode(ctx context.Context, code string) (string, error)
	FetchUser(ctx context.Context, accessToken string) (*identity.GitHubUser, error)
}

// ExchangeRequest is the body of the code-exchange endpoint.
type ExchangeRequest struct {
	Code string `json:"code"`
}

// ExchangeResponse consolidates the token and profile hops into one
// result for the client.
type ExchangeResponse struct {
	Success     bool    `json:"success"`
	AccessToken string  `json:"access_token"`
	GitHubID    int64   `json:"github_id"`
	Login       string  `json:"login"`
	Name        *string `json:"name"`
	Email       *string `json:"email"`
	AvatarURL   string  `json:"avatar_url"`
}

// HandleGitHubExchange exchanges a one-time authorization code for an
// access token and the user's profile. The client never talks to the
// provider's token endpoint directly: the exchange needs the client
// secret, which must stay on the server.
func HandleGitHubExchange(cfg *config.Config, gh GitHubExchanger, codes storage.CodeRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.GitHub == nil || !cfg.GitHub.Enabled {
			log.Println("Exchange: github login requested but server is not configured for it")
			writeError(w, http.StatusInternalServerError, "server is not configured for github login", "exchange")
			return
		}

		var req ExchangeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body", "exchange")
			return
		}
		if req.Code == "" {
			writeError(w, http.StatusBadRequest, "missing authorization code", "exchange")
			return
		}

		// Codes are single-use. A replay (page reload, double submit)
		// is rejected here before any outbound call.
		fresh, err := codes.MarkConsumed(r.Context(), req.Code)
		if err != nil {
			log.Println("Exchange: failed to register code:", err)
			writeError(w, http.StatusInternalServerError, "failed to process authorization code", "exchange")
			return
		}
		if !fresh {
			log.Println("Exchange: replayed authorization code rejected")
			writeError(w, http.StatusUnauthorized, "authorization code already used", "exchange")
			return
		}

		accessToken, err := gh.ExchangeCode(r.Context(), req.Code)
		if err != nil {
			var retrieve *oauth2.RetrieveError
			// The oauth2 package reports a token-less 2xx answer as a
			// plain "missing access_token" error, not a RetrieveError.
			if errors.As(err, &retrieve) || errors.Is(err, github.ErrNoAccessToken) ||
				strings.Contains(err.Error(), "missing access_token") {
				log.Println("Exchange: provider rejected authorization code:", err)
				writeError(w, http.StatusUnauthorized, "provider rejected authorization code", "exchange")
				return
			}
			log.Println("Exchange: token exchange failed:", err)
			writeError(w, http.StatusInternalServerError, "failed to exchange authorization code", "exchange")
			return
		}

		user, err := gh.FetchUser(r.Context(), accessToken)
		if err != nil {
			log.Println("Exchange: profile fetch failed:", err)
			var rejected *github.TokenRejectedError
			if errors.As(err, &rejected) {
				writeError(w, http.StatusUnauthorized, "failed to fetch user profile", "profile")
				return
			}
			writeError(w, http.StatusInternalServerError, "failed to fetch user profile", "profile")
			return
		}

		log.Printf("Exchange: authenticated github user %s (token %s)", user.Login, identity.Redact(accessToken))
		writeJSON(w, http.StatusOK, ExchangeResponse{
			Success:     true,
			AccessToken: accessToken,
			GitHubID:    user.ID,
			Login:       user.Login,
			Name:        user.Name,
			Email:       user.Email,
			AvatarURL:   user.AvatarURL,
		})
	}
}
