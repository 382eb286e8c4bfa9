package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds global settings for the ScamTrap gateway.
// All settings can be configured via environment variables or programmatically.
type Config struct {
	// === Core Settings ===
	APIKey     string // API key required on authenticated endpoints (env: SCAMTRAP_API_KEY)
	ListenAddr string // HTTP listen address (default: ":8080")

	// === Report Dispatch ===
	ReportEndpoint          string // Callback URL for final reports; empty disables dispatch
	FailedReportsDir        string // Directory for payloads that exhaust all retries (default: "failed_reports")
	MaxConcurrentDispatches int    // Upper bound on in-flight report deliveries (default: 8)

	// === Session Management ===
	SessionTTL      time.Duration // Idle session lifetime before cleanup (default: 1 hour)
	CleanupInterval time.Duration // Housekeeping sweep interval (default: 5 minutes)

	// === Engagement Completion ===
	// Tune these to control how long the decoy keeps a scammer talking before
	// the session is considered intelligence-complete.
	CompletionMinTurns      int // Turn count that forces completion (default: 10)
	EntityRepeatThreshold   int // Occurrences of a high-value entity that complete a session (default: 2)
	CredentialTurnThreshold int // Distinct turns with credential requests that complete a session (default: 3)

	// === Signal Weights ===
	WeightsFile string // Optional YAML weight-override file (env: SCAMTRAP_WEIGHTS_FILE)

	// === Optional Backends ===
	RedisAddr   string // Redis address for the distributed session store; empty uses in-memory
	PostgresDSN string // Postgres DSN for the report outcome archive; empty disables archiving

	// === Persona ===
	PersonaName    string // Decoy persona used for engagement replies (default: "grandma")
	PersonaEnabled bool   // Disable to run detection-only without decoy replies (default: true)

	// === Intelligence Extraction ===
	ExtraKeywords []string // Additional suspicious keywords collected into reports (env: SCAMTRAP_EXTRA_KEYWORDS, comma-separated)
}

// NewDefaultConfig creates a Config with sensible defaults.
// All settings can be overridden via environment variables.
func NewDefaultConfig() *Config {
	return &Config{
		APIKey:     GetEnv("SCAMTRAP_API_KEY", ""),
		ListenAddr: GetEnv("SCAMTRAP_LISTEN_ADDR", ":8080"),

		ReportEndpoint:          GetEnv("SCAMTRAP_REPORT_URL", ""),
		FailedReportsDir:        GetEnv("SCAMTRAP_FAILED_REPORTS_DIR", "failed_reports"),
		MaxConcurrentDispatches: clampInt(GetEnvInt("SCAMTRAP_MAX_DISPATCHES", 8), 1, 256),

		SessionTTL:      time.Duration(GetEnvInt("SCAMTRAP_SESSION_TTL_SECONDS", 3600)) * time.Second,
		CleanupInterval: time.Duration(GetEnvInt("SCAMTRAP_CLEANUP_INTERVAL_SECONDS", 300)) * time.Second,

		CompletionMinTurns:      clampInt(GetEnvInt("SCAMTRAP_COMPLETION_MIN_TURNS", 10), 1, 1000),
		EntityRepeatThreshold:   clampInt(GetEnvInt("SCAMTRAP_ENTITY_REPEAT_THRESHOLD", 2), 1, 100),
		CredentialTurnThreshold: clampInt(GetEnvInt("SCAMTRAP_CREDENTIAL_TURN_THRESHOLD", 3), 1, 100),

		WeightsFile: GetEnv("SCAMTRAP_WEIGHTS_FILE", ""),

		RedisAddr:   GetEnv("SCAMTRAP_REDIS_ADDR", ""),
		PostgresDSN: GetEnv("SCAMTRAP_POSTGRES_DSN", ""),

		PersonaName:    GetEnv("SCAMTRAP_PERSONA", "grandma"),
		PersonaEnabled: GetEnvBool("SCAMTRAP_PERSONA_ENABLED", true),

		ExtraKeywords: GetEnvSlice("SCAMTRAP_EXTRA_KEYWORDS", nil),
	}
}

// NewStrictConfig creates a Config that completes engagements early.
// Use when report latency matters more than intelligence depth.
func NewStrictConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.CompletionMinTurns = 6
	cfg.CredentialTurnThreshold = 2
	return cfg
}

// NewLenientConfig creates a Config that keeps scammers engaged longer
// before reporting, maximizing extracted intelligence.
func NewLenientConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.CompletionMinTurns = 15
	cfg.EntityRepeatThreshold = 3
	cfg.CredentialTurnThreshold = 5
	return cfg
}

// clampInt ensures a value is within bounds
func clampInt(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}

// Helper functions for environment variable parsing
// These are exported for use by other packages

// GetEnv returns the value of an environment variable or a default value.
func GetEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// GetEnvBool returns the boolean value of an environment variable or a default value.
func GetEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

// GetEnvInt returns the integer value of an environment variable or a default value.
func GetEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

// GetEnvSlice returns a comma-separated list from an environment variable or a default value.
func GetEnvSlice(key string, defaultValue []string) []string {
	if v := os.Getenv(key); v != "" {
		var parts []string
		for _, p := range strings.Split(v, ",") {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				parts = append(parts, trimmed)
			}
		}
		if len(parts) > 0 {
			return parts
		}
	}
	return defaultValue
}

// RequiredSecret defines a required environment variable for startup validation
type RequiredSecret struct {
	Name        string // Environment variable name
	Description string // Human-readable description
	Production  bool   // Required in production only (false = required always)
}

// CriticalSecrets returns the list of secrets required for the gateway to operate
func CriticalSecrets() []RequiredSecret {
	return []RequiredSecret{
		{Name: "SCAMTRAP_API_KEY", Description: "API key for gateway authentication", Production: true},
		{Name: "SCAMTRAP_REPORT_URL", Description: "callback URL for final scam reports", Production: true},
	}
}

func isProduction() bool {
	env := strings.ToLower(os.Getenv("SCAMTRAP_ENV"))
	return env == "production" || env == "prod"
}

// Validate checks that all required configuration is present.
// In production mode, this returns an error if critical secrets are missing.
// In development mode, it logs warnings but allows startup for local testing.
func (c *Config) Validate() error {
	prod := isProduction()

	var missing []string
	var warnings []string

	for _, secret := range CriticalSecrets() {
		if os.Getenv(secret.Name) != "" {
			continue
		}
		if secret.Production && !prod {
			warnings = append(warnings, secret.Name+" ("+secret.Description+")")
		} else {
			missing = append(missing, secret.Name+" ("+secret.Description+")")
		}
	}

	if c.SessionTTL <= 0 {
		missing = append(missing, "SCAMTRAP_SESSION_TTL_SECONDS (must be positive)")
	}
	if c.CompletionMinTurns < 1 {
		missing = append(missing, "SCAMTRAP_COMPLETION_MIN_TURNS (must be at least 1)")
	}

	for _, w := range warnings {
		log.Printf("[STARTUP] Warning: Missing optional secret: %s", w)
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	return nil
}

// MustValidate calls Validate and fatally exits if validation fails.
// Call this at startup before starting the server.
func (c *Config) MustValidate() {
	if err := c.Validate(); err != nil {
		log.Fatalf("[STARTUP] FATAL: Configuration validation failed: %v", err)
	}
	log.Println("[STARTUP] Configuration validated successfully")
}
