// Package config reads the board service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultTasksChannel is the broadcast name producers and boards agree on.
const DefaultTasksChannel = "kanbanTasksUpdated"

type Config struct {
	HRBaseURL string
	HRToken   string
	HRTimeout time.Duration

	RedisConn    string
	TasksChannel string
	InflightTTL  time.Duration

	ResyncSchedule string

	StorageConn    string
	DecisionsTable string
	DecisionsQueue string

	Auth0Domain   string
	Auth0Audience string
	TestMode      bool
	TestSecret    string
	JWKSCacheTTL  time.Duration

	Port  string
	Debug bool
}

// Load reads an optional .env file from the working directory, then the
// environment. Variables already set win over the file.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}

	cfg := Config{
		HRBaseURL:      get("HR_API_BASE_URL"),
		HRToken:        get("HR_API_TOKEN"),
		RedisConn:      get("REDIS_CONNECTION_STRING"),
		TasksChannel:   get("TASKS_UPDATED_CHANNEL"),
		ResyncSchedule: get("RESYNC_SCHEDULE"),
		StorageConn:    get("STORAGE_CONNECTION_STRING"),
		DecisionsTable: get("DECISIONS_TABLE"),
		DecisionsQueue: get("DECISIONS_QUEUE"),
		Auth0Domain:    get("AUTH0_DOMAIN"),
		Auth0Audience:  get("AUTH0_AUDIENCE"),
		TestMode:       get("AUTH0_TEST_MODE") == "1",
		TestSecret:     get("TEST_JWT_SECRET"),
		Port:           get("PORT"),
	}
	if cfg.HRBaseURL == "" {
		return cfg, errors.New("HR_API_BASE_URL is required")
	}
	if cfg.TasksChannel == "" {
		cfg.TasksChannel = DefaultTasksChannel
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if v, ok := lookup("FUNCTIONS_CUSTOMHANDLER_PORT"); ok && v != "" {
		cfg.Port = v
	}

	var err error
	if cfg.Debug, err = parseBool(get("DEBUG")); err != nil {
		return cfg, fmt.Errorf("invalid DEBUG: %w", err)
	}
	if cfg.HRTimeout, err = parseDuration(get("HR_API_TIMEOUT"), 15*time.Second); err != nil {
		return cfg, fmt.Errorf("invalid HR_API_TIMEOUT: %w", err)
	}
	if cfg.InflightTTL, err = parseDuration(get("INFLIGHT_TTL"), 30*time.Second); err != nil {
		return cfg, fmt.Errorf("invalid INFLIGHT_TTL: %w", err)
	}
	if cfg.JWKSCacheTTL, err = parseDuration(get("JWKS_CACHE_TTL"), 15*time.Minute); err != nil {
		return cfg, fmt.Errorf("invalid JWKS_CACHE_TTL: %w", err)
	}

	if cfg.TestMode {
		if cfg.TestSecret == "" {
			return cfg, errors.New("TEST_JWT_SECRET is required in test mode")
		}
	} else if cfg.Auth0Domain == "" || cfg.Auth0Audience == "" {
		return cfg, errors.New("missing Auth0 config")
	}
	return cfg, nil
}

// JWKSURL is the key set endpoint of the Auth0 tenant.
func (c Config) JWKSURL() string {
	return fmt.Sprintf("https://%s/.well-known/jwks.json", c.Auth0Domain)
}

// Issuer is the expected iss claim.
func (c Config) Issuer() string {
	if c.Auth0Domain == "" {
		return ""
	}
	return "https://" + c.Auth0Domain + "/"
}

// AuditEnabled reports whether decisions are journaled.
func (c Config) AuditEnabled() bool {
	return c.StorageConn != "" && (c.DecisionsTable != "" || c.DecisionsQueue != "")
}

func parseBool(raw string) (bool, error) {
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}

func parseDuration(raw string, def time.Duration) (time.Duration, error) {
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, errors.New("must be greater than zero")
	}
	return d, nil
}
