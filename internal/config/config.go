// Package config provides environment-based configuration for the server.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds everything the server needs to run. Values come from the
// environment; a .env file is loaded by the CLI entry point before this
// package reads anything.
type Config struct {
	// Port the HTTP server listens on.
	Port int
	// DatabaseURL is the PostgreSQL connection URL for the report-context store.
	DatabaseURL string

	// UploadDir receives uploaded CSV files.
	UploadDir string
	// OutputDir receives generated documents.
	OutputDir string
	// TemplatePath is the audit summary DOCX template.
	TemplatePath string

	// Model backend settings.
	LLMProvider     string
	LLMModel        string
	LLMAPIKey       string
	AzureEndpoint   string
	AzureDeployment string

	// Report pacing and retry settings.
	MaxAttempts    int
	InitialBackoff time.Duration
	PacingDelay    time.Duration

	// OAuth identity provider settings.
	OAuth OAuthConfig

	// CookieSecret signs the PKCE verifier cookie.
	CookieSecret string
}

// OAuthConfig holds the identity provider registration.
type OAuthConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Load reads configuration from the environment, applying defaults for
// everything that is safe to default.
func Load() (*Config, error) {
	cfg := &Config{
		Port:         getEnvInt("PORT", 3000),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		UploadDir:    getEnvString("UPLOAD_DIR", "uploads"),
		OutputDir:    getEnvString("OUTPUT_DIR", "filled"),
		TemplatePath: getEnvString("TEMPLATE_PATH", "doctemplates/TEMPLATE-AuditSummaryReport-[Client]-[Project]-[Date].docx"),

		LLMProvider:     getEnvString("LLM_PROVIDER", "gemini"),
		LLMModel:        getEnvString("LLM_MODEL", "gemini-2.5-flash"),
		LLMAPIKey:       os.Getenv("LLM_API_KEY"),
		AzureEndpoint:   os.Getenv("AZURE_OPENAI_ENDPOINT"),
		AzureDeployment: os.Getenv("AZURE_OPENAI_DEPLOYMENT"),

		MaxAttempts:    getEnvInt("MODEL_MAX_ATTEMPTS", 6),
		InitialBackoff: getEnvDuration("MODEL_INITIAL_BACKOFF", 20*time.Second),
		PacingDelay:    getEnvDuration("MODEL_PACING_DELAY", time.Second),

		OAuth: OAuthConfig{
			TenantID:     os.Getenv("TENANT_ID"),
			ClientID:     os.Getenv("CLIENT_ID"),
			ClientSecret: os.Getenv("CLIENT_SECRET"),
			RedirectURL:  os.Getenv("OAUTH_REDIRECT_URL"),
		},

		CookieSecret: os.Getenv("COOKIE_SECRET"),
	}

	if cfg.OAuth.RedirectURL == "" {
		cfg.OAuth.RedirectURL = fmt.Sprintf("http://localhost:%d/auth/callback", cfg.Port)
	}

	return cfg, cfg.Validate()
}

// Validate checks that required settings are present.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("config error: DATABASE_URL is required")
	}
	if c.LLMAPIKey == "" {
		return fmt.Errorf("config error: LLM_API_KEY is required")
	}
	if c.OAuth.TenantID == "" || c.OAuth.ClientID == "" {
		return fmt.Errorf("config error: TENANT_ID and CLIENT_ID are required")
	}
	if c.CookieSecret == "" {
		return fmt.Errorf("config error: COOKIE_SECRET is required")
	}
	if c.LLMProvider == "azure-openai" && (c.AzureEndpoint == "" || c.AzureDeployment == "") {
		return fmt.Errorf("config error: AZURE_OPENAI_ENDPOINT and AZURE_OPENAI_DEPLOYMENT are required for the azure-openai provider")
	}
	return nil
}

// getEnvString gets an environment variable as a string with a default value.
func getEnvString(key string, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as an integer with a default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDuration gets an environment variable as a duration with a default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
