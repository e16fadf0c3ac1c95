package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/carvik/geodex/internal/identity"
	"github.com/carvik/geodex/internal/models"
)

type routerGitHub struct{ fakeGitHub }

func newTestRouter(t *testing.T) (http.Handler, *memRecordStore) {
	t.Helper()
	store := &memRecordStore{}
	gh := &routerGitHub{fakeGitHub{
		exchangeToken: "gho_t1",
		user:          &identity.GitHubUser{ID: 42, Login: "bob"},
	}}
	return NewRouter(testConfig(), gh, store, newMemCodeRegistry()), store
}

func TestRouterHealthIsPublic(t *testing.T) {
	router, _ := newTestRouter(t)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rr.Code)
	}
}

func TestRouterExchangeIsPublic(t *testing.T) {
	router, _ := newTestRouter(t)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/auth/github/exchange",
		strings.NewReader(`{"code":"abc123"}`)))
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
}

func TestRouterRecordsRequireAuth(t *testing.T) {
	router, _ := newTestRouter(t)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/records", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rr.Code)
	}
}

func TestRouterRecordLifecycle(t *testing.T) {
	router, _ := newTestRouter(t)

	// Submit with the static key.
	req := httptest.NewRequest(http.MethodPost, "/api/records",
		strings.NewReader(`{"ip":"1.2.3.4","city":"Lisbon"}`))
	req.Header.Set(headerAPIKey, "sekrit-static-key-1234")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var created models.Record
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created.AuthProvider != string(identity.ProviderAPIKey) {
		t.Errorf("AuthProvider = %q, want api-key", created.AuthProvider)
	}

	// Fetch it back by id with a github bearer token.
	req = httptest.NewRequest(http.MethodGet, "/api/records/1", nil)
	req.Header.Set("Authorization", "Bearer gho_t1")
	req.Header.Set(headerProvider, "github")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("get: status = %d, body = %s", rr.Code, rr.Body.String())
	}

	// Missing and malformed ids.
	for target, want := range map[string]int{
		"/api/records/999": http.StatusNotFound,
		"/api/records/abc": http.StatusBadRequest,
	} {
		req = httptest.NewRequest(http.MethodGet, target, nil)
		req.Header.Set(headerAPIKey, "sekrit-static-key-1234")
		rr = httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != want {
			t.Errorf("%s: status = %d, want %d", target, rr.Code, want)
		}
	}
}

func TestRouterCurrentUser(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/user/me", nil)
	req.Header.Set("Authorization", "Bearer gho_t1")
	req.Header.Set(headerProvider, "github")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var p Principal
	if err := json.Unmarshal(rr.Body.Bytes(), &p); err != nil {
		t.Fatal(err)
	}
	if p.Email != "user_42@github.local" {
		t.Errorf("Email = %q", p.Email)
	}
}
