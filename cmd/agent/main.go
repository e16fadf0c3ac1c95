package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/carvik/geodex/internal/authflow"
	"github.com/carvik/geodex/internal/config"
	"github.com/carvik/geodex/internal/geo"
	"github.com/carvik/geodex/internal/models"
	"github.com/carvik/geodex/internal/session"
)

func main() {
	log.SetFlags(0)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg := config.LoadAgent()
	store, err := session.NewStore()
	if err != nil {
		log.Fatalf("Failed to open session store: %v", err)
	}

	switch os.Args[1] {
	case "login":
		cmdLogin(cfg, store, os.Args[2:])
	case "logout":
		cmdLogout(store)
	case "whoami":
		cmdWhoami(store)
	case "collect":
		cmdCollect(cfg, store, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: agent <command>

Commands:
  login github             log in via the GitHub authorization-code flow
  login google -token T    log in with a Google-issued ID token
  logout                   clear the stored session
  whoami                   show the current session
  collect [-ip IP] [-submit]  aggregate geo data, optionally submit it`)
}

func cmdLogin(cfg *config.AgentConfig, store *session.Store, args []string) {
	if len(args) < 1 {
		usage()
		os.Exit(2)
	}

	switch args[0] {
	case "github":
		loginGitHub(cfg, store)
	case "google":
		fs := flag.NewFlagSet("login google", flag.ExitOnError)
		token := fs.String("token", "", "Google-issued ID token")
		fs.Parse(args[1:])
		if *token == "" {
			log.Fatal("login google requires -token")
		}
		id, err := authflow.LoginWithIDToken(store, *token)
		if err != nil {
			log.Fatalf("Login failed: %v", err)
		}
		fmt.Printf("Logged in as %s (%s)\n", id.Name, id.Email)
	default:
		log.Fatalf("Unknown login provider %q (want github or google)", args[0])
	}
}

// loginGitHub runs the full authorization-code round trip: print the
// consent URL, catch the redirect on a local listener, exchange the
// code through the server. The listener answers the redirect with a
// plain page so the one-time query parameters never stay visible
// anywhere the user could reload.
func loginGitHub(cfg *config.AgentConfig, store *session.Store) {
	flow := authflow.NewFlow(authflow.Config{
		ClientID:    cfg.GitHubClientID,
		RedirectURI: cfg.RedirectURI,
		Scope:       cfg.Scope,
		ExchangeURL: cfg.ServerURL + "/api/auth/github/exchange",
	}, store)

	authURL, err := flow.Start()
	if err != nil {
		log.Fatalf("Login failed: %v", err)
	}

	callback, err := waitForCallback(cfg.RedirectURI, authURL)
	if err != nil {
		log.Fatalf("Login failed: %v", err)
	}

	if err := flow.HandleCallback(callback); err != nil {
		log.Fatalf("Login failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	id, err := flow.Exchange(ctx)
	if err != nil {
		log.Fatalf("Login failed: %v", err)
	}
	fmt.Printf("Logged in as %s (%s)\n", id.Name, id.Email)
}

// waitForCallback serves the OAuth redirect URI until one callback
// arrives, then shuts the listener down. The consent URL is printed
// for the user to open.
func waitForCallback(redirectURI, authURL string) (url.Values, error) {
	target, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect uri: %w", err)
	}

	listener, err := net.Listen("tcp", target.Host)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", target.Host, err)
	}

	fmt.Println("Open this URL in your browser to continue:")
	fmt.Println("  " + authURL)

	done := make(chan url.Values, 1)
	server := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != target.Path {
			http.NotFound(w, r)
			return
		}
		// Respond without echoing the query so a reload of this page
		// cannot replay the one-time code.
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body>Login received. You can close this tab.</body></html>")
		select {
		case done <- r.URL.Query():
		default:
		}
	})}
	go server.Serve(listener)
	defer server.Close()

	select {
	case values := <-done:
		return values, nil
	case <-time.After(5 * time.Minute):
		return nil, fmt.Errorf("timed out waiting for the provider redirect")
	}
}

func cmdLogout(store *session.Store) {
	if err := store.Clear(); err != nil {
		log.Fatalf("Logout failed: %v", err)
	}
	fmt.Println("Logged out")
}

func cmdWhoami(store *session.Store) {
	id, err := store.Load()
	if err != nil {
		log.Fatalf("Failed to read session: %v", err)
	}
	if id == nil {
		fmt.Println("Not logged in")
		os.Exit(1)
	}
	fmt.Printf("%s (%s) via %s, token %s\n", id.Name, id.Email, id.Provider, id.RedactedToken())
}

func cmdCollect(cfg *config.AgentConfig, store *session.Store, args []string) {
	fs := flag.NewFlagSet("collect", flag.ExitOnError)
	ip := fs.String("ip", "", "IP to look up (defaults to the caller's public IP)")
	submit := fs.Bool("submit", false, "submit the aggregated record to the server")
	fs.Parse(args)

	aggregator := geo.NewAggregator(cfg.GeoBaseURL, cfg.GeoFallbackURL, cfg.CountryBaseURL, cfg.CityBaseURL)
	if key := os.Getenv("CITY_API_KEY"); key != "" {
		aggregator.WithCityAPIKey(key)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	rec, err := aggregator.Collect(ctx, *ip)
	if err != nil {
		log.Fatalf("Aggregation failed: %v", err)
	}

	out, _ := json.MarshalIndent(rec, "", "  ")
	fmt.Println(string(out))

	if !*submit {
		return
	}

	if err := submitRecord(ctx, cfg, store, rec); err != nil {
		log.Fatalf("Submit failed: %v", err)
	}
	fmt.Println("Record submitted")
}

// submitRecord posts the aggregated record with whichever credentials
// are available: the stored OAuth session, or the static key from the
// environment.
func submitRecord(ctx context.Context, cfg *config.AgentConfig, store *session.Store, rec *models.Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.ServerURL+"/api/records", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	id, err := store.Load()
	if err != nil {
		return err
	}
	switch {
	case id != nil:
		req.Header.Set("Authorization", "Bearer "+id.AccessToken)
		req.Header.Set("X-User-Provider", string(id.Provider))
		req.Header.Set("X-User-Email", id.Email)
	case os.Getenv("GEODEX_API_KEY") != "":
		req.Header.Set("X-API-Key", os.Getenv("GEODEX_API_KEY"))
	default:
		return fmt.Errorf("not logged in and GEODEX_API_KEY is not set")
	}

	resp, err := (&http.Client{Timeout: 30 * time.Second}).Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			// A rejected token likely means the session went stale.
			if err := store.Clear(); err != nil {
				log.Printf("Session: %v", err)
			}
			return fmt.Errorf("server rejected credentials (%d): %s", resp.StatusCode, string(msg))
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(msg))
	}
	return nil
}
