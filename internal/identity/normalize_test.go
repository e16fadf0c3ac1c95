package identity

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signTestToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	raw, err := token.SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return raw
}

func TestFromIDToken(t *testing.T) {
	raw := signTestToken(t, jwt.MapClaims{
		"sub":     "108793446",
		"email":   "ada@example.com",
		"name":    "Ada Lovelace",
		"picture": "https://example.com/ada.png",
		"exp":     float64(1900000000),
	})

	id, err := FromIDToken(raw)
	if err != nil {
		t.Fatalf("FromIDToken returned error: %v", err)
	}

	if id.ID != "108793446" {
		t.Errorf("ID = %q, want %q", id.ID, "108793446")
	}
	if id.Email != "ada@example.com" {
		t.Errorf("Email = %q, want %q", id.Email, "ada@example.com")
	}
	if id.Name != "Ada Lovelace" {
		t.Errorf("Name = %q, want %q", id.Name, "Ada Lovelace")
	}
	if id.PictureURL != "https://example.com/ada.png" {
		t.Errorf("PictureURL = %q", id.PictureURL)
	}
	if id.Provider != ProviderGoogle {
		t.Errorf("Provider = %q, want %q", id.Provider, ProviderGoogle)
	}
	if id.AccessToken != raw {
		t.Error("AccessToken should carry the raw token")
	}
	if id.TokenExpiry != 1900000000*1000 {
		t.Errorf("TokenExpiry = %d, want %d", id.TokenExpiry, int64(1900000000)*1000)
	}
}

func TestFromIDTokenDefaultsName(t *testing.T) {
	raw := signTestToken(t, jwt.MapClaims{
		"sub":   "1",
		"email": "anon@example.com",
	})

	id, err := FromIDToken(raw)
	if err != nil {
		t.Fatalf("FromIDToken returned error: %v", err)
	}
	if id.Name != "User" {
		t.Errorf("Name = %q, want default %q", id.Name, "User")
	}
	if id.TokenExpiry != 0 {
		t.Errorf("TokenExpiry = %d, want 0 for token without exp", id.TokenExpiry)
	}
}

func TestFromIDTokenMissingEmail(t *testing.T) {
	raw := signTestToken(t, jwt.MapClaims{
		"sub":  "1",
		"name": "No Email",
	})

	id, err := FromIDToken(raw)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
	if id != nil {
		t.Error("expected no identity on missing email claim")
	}
}

func TestFromIDTokenMalformed(t *testing.T) {
	for _, raw := range []string{"", "not-a-token", "a.b", "a.!!!.c"} {
		if _, err := FromIDToken(raw); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("FromIDToken(%q) err = %v, want ErrInvalidToken", raw, err)
		}
	}
}

func TestFromGitHubUser(t *testing.T) {
	name := "Bob"
	email := "bob@example.com"
	u := GitHubUser{ID: 42, Login: "bob", Name: &name, Email: &email, AvatarURL: "https://example.com/a.png"}

	id := FromGitHubUser(u, "gho_t1")
	if id.ID != "42" {
		t.Errorf("ID = %q, want %q", id.ID, "42")
	}
	if id.Email != "bob@example.com" {
		t.Errorf("Email = %q", id.Email)
	}
	if id.Name != "Bob" {
		t.Errorf("Name = %q", id.Name)
	}
	if id.Provider != ProviderGitHub {
		t.Errorf("Provider = %q", id.Provider)
	}
	if id.AccessToken != "gho_t1" {
		t.Errorf("AccessToken = %q", id.AccessToken)
	}
	if id.TokenExpiry != 0 {
		t.Error("code-flow identities never carry an expiry")
	}
}

func TestFromGitHubUserPlaceholderEmail(t *testing.T) {
	u := GitHubUser{ID: 42, Login: "bob"}

	id := FromGitHubUser(u, "t1")
	if id.Email != "user_42@github.local" {
		t.Errorf("Email = %q, want placeholder user_42@github.local", id.Email)
	}
	if id.Name != "bob" {
		t.Errorf("Name = %q, want login fallback", id.Name)
	}
}

func TestExpired(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name   string
		expiry int64
		want   bool
	}{
		{"no expiry", 0, false},
		{"future", now.Add(time.Hour).UnixMilli(), false},
		{"past", now.Add(-time.Hour).UnixMilli(), true},
	}
	for _, tc := range cases {
		id := &Identity{ID: "1", Email: "x@example.com", TokenExpiry: tc.expiry}
		if got := id.Expired(now); got != tc.want {
			t.Errorf("%s: Expired = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestRedact(t *testing.T) {
	if got := Redact("abcdefghijkl"); got != "abcd****" {
		t.Errorf("Redact = %q", got)
	}
	if got := Redact("short"); got != "****" {
		t.Errorf("Redact short = %q", got)
	}
	if strings.Contains(Redact("gho_supersecrettoken"), "supersecret") {
		t.Error("Redact must not expose the token body")
	}
}
