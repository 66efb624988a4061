// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetWebhookSharedKey() string
}

// TelephonyConfig provides settings for the outbound voice-AI provider.
type TelephonyConfig interface {
	GetRetellBaseURL() string
	GetRetellAPIKey() string
	GetRetellFromNumber() string
	GetRetellCallTimeout() time.Duration
	GetAgentID(taskType string) string
}

// PhoneConfig provides settings for phone number normalization.
type PhoneConfig interface {
	GetPhoneRegion() string
	GetPhoneCountryCode() string
}

// BookingConfig provides settings for the booking workflow.
type BookingConfig interface {
	GetMaxPatientAttempts() int
}

// SchedulerConfig provides settings for the retry scheduler.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetRetryPassInterval() time.Duration
	GetCallingHoursStart() string
	GetCallingHoursEnd() string
	GetCallingTimeZone() string
}

// MatchConfig provides tuning parameters for fuzzy worker matching.
// The thresholds are empirically chosen; treat them as knobs, not truths.
type MatchConfig interface {
	GetMatchAutoThreshold() float64
	GetMatchConfirmThreshold() float64
	GetMatchGivenNameBonus() float64
	GetMatchPhoneticBonus() float64
}

// IntakeConfig provides settings for inbound incident intake.
type IntakeConfig interface {
	GetFallbackEmployerID() int64
	GetDefaultMedicalCenterID() int64
}

// RedisConfig provides settings for the optional redis dedup store.
type RedisConfig interface {
	GetRedisURL() string
	GetWebhookDedupTTL() time.Duration
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env               string
	HTTPAddr          string
	DatabaseURL       string
	CORSAllowAll      bool
	CORSOrigins       []string
	WebhookSharedKey  string
	RedisURL          string
	RedisTLSInsecure  bool
	AsynqQueueName    string
	AsynqConcurrency  int
	RetryPassInterval time.Duration
	WebhookDedupTTL   time.Duration

	RetellBaseURL     string
	RetellAPIKey      string
	RetellFromNumber  string
	RetellCallTimeout time.Duration
	AgentIDs          map[string]string
	DefaultAgentID    string

	PhoneRegion      string
	PhoneCountryCode string

	MaxPatientAttempts int
	CallingHoursStart  string
	CallingHoursEnd    string
	CallingTimeZone    string

	MatchAutoThreshold    float64
	MatchConfirmThreshold float64
	MatchGivenNameBonus   float64
	MatchPhoneticBonus    float64

	FallbackEmployerID     int64
	DefaultMedicalCenterID int64
}

// Load reads configuration from the environment (and .env if present).
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:               getEnv("APP_ENV", "development"),
		HTTPAddr:          getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		CORSAllowAll:      corsAllowAll,
		CORSOrigins:       corsOrigins,
		WebhookSharedKey:  getEnv("WEBHOOK_SHARED_KEY", ""),
		RedisURL:          getEnv("REDIS_URL", ""),
		RedisTLSInsecure:  strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:    getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:  getIntEnv("ASYNQ_CONCURRENCY", 10),
		RetryPassInterval: mustDuration(getEnv("RETRY_PASS_INTERVAL", "5m")),
		WebhookDedupTTL:   mustDuration(getEnv("WEBHOOK_DEDUP_TTL", "24h")),

		RetellBaseURL:     getEnv("RETELL_BASE_URL", "https://api.retellai.com"),
		RetellAPIKey:      getEnv("RETELL_API_KEY", ""),
		RetellFromNumber:  getEnv("RETELL_FROM_NUMBER", ""),
		RetellCallTimeout: mustDuration(getEnv("RETELL_CALL_TIMEOUT", "15s")),
		AgentIDs: map[string]string{
			"booking_get_times":       getEnv("RETELL_AGENT_BOOKING_GET_TIMES", ""),
			"booking_patient_confirm": getEnv("RETELL_AGENT_BOOKING_PATIENT_CONFIRM", ""),
			"booking_final_confirm":   getEnv("RETELL_AGENT_BOOKING_FINAL_CONFIRM", ""),
		},
		DefaultAgentID: getEnv("RETELL_AGENT_DEFAULT", ""),

		PhoneRegion:      getEnv("PHONE_REGION", "AU"),
		PhoneCountryCode: getEnv("PHONE_COUNTRY_CODE", "61"),

		MaxPatientAttempts: getIntEnv("BOOKING_MAX_PATIENT_ATTEMPTS", 3),
		CallingHoursStart:  getEnv("CALLING_HOURS_START", "07:00"),
		CallingHoursEnd:    getEnv("CALLING_HOURS_END", "21:30"),
		CallingTimeZone:    getEnv("CALLING_TIME_ZONE", "Australia/Sydney"),

		MatchAutoThreshold:    getFloatEnv("MATCH_AUTO_THRESHOLD", 0.9),
		MatchConfirmThreshold: getFloatEnv("MATCH_CONFIRM_THRESHOLD", 0.6),
		MatchGivenNameBonus:   getFloatEnv("MATCH_GIVEN_NAME_BONUS", 0.2),
		MatchPhoneticBonus:    getFloatEnv("MATCH_PHONETIC_BONUS", 0.3),

		FallbackEmployerID:     int64(getIntEnv("INTAKE_FALLBACK_EMPLOYER_ID", 1)),
		DefaultMedicalCenterID: int64(getIntEnv("INTAKE_DEFAULT_MEDICAL_CENTER_ID", 0)),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.MaxPatientAttempts < 1 {
		return nil, fmt.Errorf("BOOKING_MAX_PATIENT_ATTEMPTS must be at least 1")
	}
	if cfg.MatchConfirmThreshold > cfg.MatchAutoThreshold {
		return nil, fmt.Errorf("MATCH_CONFIRM_THRESHOLD cannot exceed MATCH_AUTO_THRESHOLD")
	}

	return cfg, nil
}

func (c *Config) GetDatabaseURL() string      { return c.DatabaseURL }
func (c *Config) GetHTTPAddr() string         { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool       { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string    { return c.CORSOrigins }
func (c *Config) GetWebhookSharedKey() string { return c.WebhookSharedKey }

func (c *Config) GetRetellBaseURL() string            { return c.RetellBaseURL }
func (c *Config) GetRetellAPIKey() string             { return c.RetellAPIKey }
func (c *Config) GetRetellFromNumber() string         { return c.RetellFromNumber }
func (c *Config) GetRetellCallTimeout() time.Duration { return c.RetellCallTimeout }

// GetAgentID resolves the provider agent identifier for a task type,
// falling back to the default agent when no specific one is configured.
func (c *Config) GetAgentID(taskType string) string {
	if id, ok := c.AgentIDs[taskType]; ok && id != "" {
		return id
	}
	return c.DefaultAgentID
}

func (c *Config) GetPhoneRegion() string      { return c.PhoneRegion }
func (c *Config) GetPhoneCountryCode() string { return c.PhoneCountryCode }

func (c *Config) GetMaxPatientAttempts() int { return c.MaxPatientAttempts }

func (c *Config) GetRedisURL() string                 { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool           { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string           { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int            { return c.AsynqConcurrency }
func (c *Config) GetRetryPassInterval() time.Duration { return c.RetryPassInterval }
func (c *Config) GetCallingHoursStart() string        { return c.CallingHoursStart }
func (c *Config) GetCallingHoursEnd() string          { return c.CallingHoursEnd }
func (c *Config) GetCallingTimeZone() string          { return c.CallingTimeZone }
func (c *Config) GetWebhookDedupTTL() time.Duration   { return c.WebhookDedupTTL }

func (c *Config) GetMatchAutoThreshold() float64    { return c.MatchAutoThreshold }
func (c *Config) GetMatchConfirmThreshold() float64 { return c.MatchConfirmThreshold }
func (c *Config) GetMatchGivenNameBonus() float64   { return c.MatchGivenNameBonus }
func (c *Config) GetMatchPhoneticBonus() float64    { return c.MatchPhoneticBonus }

func (c *Config) GetFallbackEmployerID() int64     { return c.FallbackEmployerID }
func (c *Config) GetDefaultMedicalCenterID() int64 { return c.DefaultMedicalCenterID }

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func getFloatEnv(key string, fallback float64) float64 {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
