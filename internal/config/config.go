package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// Config holds server configuration
type Config struct {
	Port        int
	Database    DatabaseConfig
	Environment string
	CORSOrigins []string
	// APIKey is the pre-shared static key accepted by the auth
	// middleware as an alternative to OAuth credentials.
	APIKey string
	GitHub *GitHubConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Type         string // postgres
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

// GitHubConfig holds the GitHub OAuth app credentials used by the
// confidential code-exchange endpoint.
type GitHubConfig struct {
	Enabled      bool
	ClientID     string
	ClientSecret string
}

// Load loads configuration from environment variables
func Load() *Config {
	env := getEnv("ENVIRONMENT", "production")

	cfg := &Config{
		Port: getEnvInt("PORT", 8080),
		Database: DatabaseConfig{
			Type:         getEnv("DATABASE_TYPE", "postgres"),
			DSN:          getEnv("DATABASE_DSN", buildPostgresDSN()),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 5),
		},
		Environment: env,
		CORSOrigins: loadCORSOrigins(env),
		APIKey:      os.Getenv("API_KEY"),
		GitHub:      loadGitHubConfig(),
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	return cfg
}

func buildPostgresDSN() string {
	host := getEnv("POSTGRES_HOST", "localhost")
	port := getEnv("POSTGRES_PORT", "5432")
	user := getEnv("POSTGRES_USER", "geodex")
	password := getEnv("POSTGRES_PASSWORD", "secret")
	dbName := getEnv("POSTGRES_DB", "geodex")
	sslMode := getEnv("POSTGRES_SSLMODE", "disable")

	u := url.URL{
		Scheme: "postgresql",
		User:   url.UserPassword(user, password),
		Host:   fmt.Sprintf("%s:%s", host, port),
		Path:   dbName,
	}

	query := u.Query()
	query.Set("sslmode", sslMode)
	u.RawQuery = query.Encode()

	return u.String()
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Environment == "production" {
		if c.APIKey == "" {
			return fmt.Errorf("API_KEY is required in production")
		}
		if len(c.APIKey) < 16 {
			return fmt.Errorf("API_KEY must be at least 16 characters in production")
		}

		// Check for insecure default secrets
		insecureSecrets := []string{
			"change-this-secret-in-production",
			"change-me-in-production",
			"secret",
			"password",
			"changeme",
		}
		for _, insecure := range insecureSecrets {
			if c.APIKey == insecure {
				return fmt.Errorf("API_KEY is set to an insecure default value. Please set a strong random secret")
			}
		}
	}

	if len(c.CORSOrigins) == 0 {
		return fmt.Errorf("at least one CORS origin must be configured")
	}

	if c.Database.Type != "postgres" {
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}

	return nil
}

func loadCORSOrigins(env string) []string {
	if appURL := getAppURL(); appURL != "" {
		return []string{appURL}
	}

	// Default origins based on environment
	if env == "development" {
		return []string{"http://localhost:3000", "http://localhost:8080"}
	}

	// In production, require explicit CORS configuration
	log.Println("WARNING: APP_URL not set. Using default localhost origins.")
	log.Println("WARNING: Set APP_URL environment variable for production deployments.")
	return []string{"http://localhost:3000", "http://localhost:8080"}
}

func loadGitHubConfig() *GitHubConfig {
	clientID := os.Getenv("GITHUB_CLIENT_ID")
	clientSecret := os.Getenv("GITHUB_CLIENT_SECRET")

	if clientID == "" || clientSecret == "" {
		if clientID != "" || clientSecret != "" {
			log.Println("WARNING: GITHUB_CLIENT_ID and GITHUB_CLIENT_SECRET must both be set. GitHub login will be disabled.")
		}
		return &GitHubConfig{Enabled: false}
	}

	return &GitHubConfig{
		Enabled:      true,
		ClientID:     clientID,
		ClientSecret: clientSecret,
	}
}

// AgentConfig holds the CLI agent's configuration.
type AgentConfig struct {
	ServerURL      string
	GitHubClientID string
	RedirectURI    string
	Scope          string
	GeoBaseURL     string
	GeoFallbackURL string
	CountryBaseURL string
	CityBaseURL    string
}

// LoadAgent loads the agent configuration from environment variables.
func LoadAgent() *AgentConfig {
	return &AgentConfig{
		ServerURL:      strings.TrimRight(getEnv("GEODEX_SERVER_URL", "http://localhost:8080"), "/"),
		GitHubClientID: os.Getenv("GITHUB_CLIENT_ID"),
		RedirectURI:    getEnv("GITHUB_REDIRECT_URI", "http://127.0.0.1:8123/callback"),
		Scope:          getEnv("GITHUB_SCOPE", "read:user user:email"),
		GeoBaseURL:     getEnv("GEO_API_URL", "https://ipapi.co"),
		GeoFallbackURL: getEnv("GEO_FALLBACK_API_URL", "http://ip-api.com"),
		CountryBaseURL: getEnv("COUNTRY_API_URL", "https://restcountries.com"),
		CityBaseURL:    getEnv("CITY_API_URL", "https://api.api-ninjas.com"),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getAppURL() string {
	appURL := os.Getenv("APP_URL")
	if appURL == "" {
		return ""
	}
	return strings.TrimRight(appURL, "/")
}
