package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"github.com/carvik/geodex/internal/config"
	"github.com/carvik/geodex/internal/github"
	"github.com/carvik/geodex/internal/identity"
)

func testConfig() *config.Config {
	return &config.Config{
		Environment: "development",
		APIKey:      "sekrit-static-key-1234",
		CORSOrigins: []string{"http://localhost:3000"},
		GitHub:      &config.GitHubConfig{Enabled: true, ClientID: "cid", ClientSecret: "cs"},
	}
}

// authProbe runs a request through the middleware and captures the
// principal the inner handler saw.
func authProbe(t *testing.T, gh GitHubVerifier, mutate func(*http.Request)) (*httptest.ResponseRecorder, *Principal) {
	t.Helper()

	var got *Principal
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	handler := AuthMiddleware(testConfig(), gh)(inner)
	req := httptest.NewRequest(http.MethodGet, "/api/records", nil)
	mutate(req)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr, got
}

func googleToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func TestAuthNoCredentials(t *testing.T) {
	rr, principal := authProbe(t, &fakeGitHub{}, func(r *http.Request) {})

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rr.Code)
	}
	if principal != nil {
		t.Error("no principal must be attached")
	}
	body := rr.Body.String()
	if !strings.Contains(body, "Authorization: Bearer") || !strings.Contains(body, "X-API-Key") {
		t.Errorf("rejection must hint at both credential shapes, got %q", body)
	}
}

func TestAuthBearerWithoutProviderHeader(t *testing.T) {
	rr, _ := authProbe(t, &fakeGitHub{}, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer X")
	})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestAuthMalformedAuthorizationHeader(t *testing.T) {
	rr, _ := authProbe(t, &fakeGitHub{}, func(r *http.Request) {
		r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		r.Header.Set(headerProvider, "google")
	})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestAuthUnknownProvider(t *testing.T) {
	rr, _ := authProbe(t, &fakeGitHub{}, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer X")
		r.Header.Set(headerProvider, "gitlab")
	})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Unknown provider") {
		t.Errorf("body = %q", rr.Body.String())
	}
}

func TestAuthGoogleToken(t *testing.T) {
	raw := googleToken(t, jwt.MapClaims{"sub": "g-1", "email": "ada@example.com", "name": "Ada"})

	rr, principal := authProbe(t, &fakeGitHub{}, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+raw)
		r.Header.Set(headerProvider, "google")
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if principal == nil {
		t.Fatal("principal missing from context")
	}
	if principal.Email != "ada@example.com" || principal.ID != "g-1" {
		t.Errorf("principal = %+v", principal)
	}
	if principal.Provider != identity.ProviderGoogle {
		t.Errorf("Provider = %q", principal.Provider)
	}
}

func TestAuthGoogleTokenRejections(t *testing.T) {
	noEmail := googleToken(t, jwt.MapClaims{"sub": "g-1"})
	cases := []struct {
		name  string
		token string
	}{
		{"garbage token", "not-a-jwt"},
		{"missing email claim", noEmail},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr, _ := authProbe(t, &fakeGitHub{}, func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer "+tc.token)
				r.Header.Set(headerProvider, "google")
			})
			// Bad bearer credentials are 401, never 403: 403 is
			// reserved for a mismatched static key.
			if rr.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rr.Code)
			}
		})
	}
}

func TestAuthGitHubToken(t *testing.T) {
	gh := &fakeGitHub{user: &identity.GitHubUser{ID: 42, Login: "bob"}}

	rr, principal := authProbe(t, gh, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer gho_t1")
		r.Header.Set(headerProvider, "github")
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if principal.Email != "user_42@github.local" {
		t.Errorf("Email = %q, want synthesized placeholder", principal.Email)
	}
	if principal.Provider != identity.ProviderGitHub {
		t.Errorf("Provider = %q", principal.Provider)
	}
	if gh.fetchCalls != 1 {
		t.Errorf("FetchUser called %d times, want 1", gh.fetchCalls)
	}
}

func TestAuthGitHubTokenRejectedVsTransport(t *testing.T) {
	rejected := &fakeGitHub{userErr: &github.TokenRejectedError{Status: 401}}
	rr, _ := authProbe(t, rejected, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer expired")
		r.Header.Set(headerProvider, "github")
	})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("provider rejection: status = %d, want 401", rr.Code)
	}

	down := &fakeGitHub{userErr: http.ErrHandlerTimeout}
	rr, _ = authProbe(t, down, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer t")
		r.Header.Set(headerProvider, "github")
	})
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("transport failure: status = %d, want 500", rr.Code)
	}
}

func TestAuthStaticKey(t *testing.T) {
	rr, principal := authProbe(t, &fakeGitHub{}, func(r *http.Request) {
		r.Header.Set(headerAPIKey, "sekrit-static-key-1234")
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if principal.Provider != identity.ProviderAPIKey {
		t.Errorf("Provider = %q, want api-key", principal.Provider)
	}
	if principal.Email == "" {
		t.Error("static-key principal needs a placeholder identity")
	}
}

func TestAuthStaticKeyMismatch(t *testing.T) {
	rr, _ := authProbe(t, &fakeGitHub{}, func(r *http.Request) {
		r.Header.Set(headerAPIKey, "wrong")
	})
	if rr.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rr.Code)
	}
}

func TestAuthBearerTakesPrecedenceOverKey(t *testing.T) {
	// Dispatch order is first match wins: a bad bearer credential is a
	// 401, even when a (bad) key header is also present.
	rr, _ := authProbe(t, &fakeGitHub{}, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer garbage")
		r.Header.Set(headerProvider, "google")
		r.Header.Set(headerAPIKey, "wrong")
	})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 not 403", rr.Code)
	}
}
