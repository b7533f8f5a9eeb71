// Package config loads the coordinator's tunables from flags with
// environment-variable overrides, following the teacher project's
// flag-based Load() shape.
package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port        int
	DBPath      string
	PolicyDir   string
	AdminToken  string

	HeartbeatTTL        time.Duration
	LeaseSeconds        time.Duration
	RequeueSweepSeconds time.Duration
	MaxAttemptsDefault  int
	RequiredSubmissionsDefault int
}

const (
	defaultHeartbeatTTLSeconds        = 75
	defaultLeaseSeconds               = 50
	defaultRequeueSweepSeconds        = 10
	defaultMaxAttempts                = 5
	defaultRequiredSubmissions        = 3
)

func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	cfg := &Config{
		Port:                       8080,
		DBPath:                     filepath.Join(cwd, "data", "taskmarket.db"),
		PolicyDir:                  filepath.Join(cwd, "data", "policies"),
		HeartbeatTTL:               defaultHeartbeatTTLSeconds * time.Second,
		LeaseSeconds:               defaultLeaseSeconds * time.Second,
		RequeueSweepSeconds:        defaultRequeueSweepSeconds * time.Second,
		MaxAttemptsDefault:         defaultMaxAttempts,
		RequiredSubmissionsDefault: defaultRequiredSubmissions,
	}

	flag.IntVar(&cfg.Port, "port", cfg.Port, "HTTP listen port")
	flag.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "path to the SQLite database")
	flag.StringVar(&cfg.PolicyDir, "policy-dir", cfg.PolicyDir, "directory of per-task-type policy YAML files")
	flag.StringVar(&cfg.AdminToken, "admin-token", cfg.AdminToken, "bearer token required for /ops endpoints (optional)")
	flag.Parse()

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d: must be between 1 and 65535", cfg.Port)
	}
	if cfg.HeartbeatTTL <= cfg.LeaseSeconds {
		return nil, fmt.Errorf("heartbeat ttl (%s) must exceed the lease duration (%s): a worker must heartbeat at least twice during a lease to keep it alive", cfg.HeartbeatTTL, cfg.LeaseSeconds)
	}

	return cfg, nil
}

// applyEnvOverrides lets every tunable be set without touching flags, for
// container-style deployment — TASKMARKET_DB_PATH in particular satisfies
// the requirement that the database location be configurable via the
// environment.
func (c *Config) applyEnvOverrides() error {
	if v := strings.TrimSpace(os.Getenv("TASKMARKET_DB_PATH")); v != "" {
		c.DBPath = v
	}
	if v := strings.TrimSpace(os.Getenv("TASKMARKET_POLICY_DIR")); v != "" {
		c.PolicyDir = v
	}
	if v := strings.TrimSpace(os.Getenv("TASKMARKET_ADMIN_TOKEN")); v != "" {
		c.AdminToken = v
	}
	if v := strings.TrimSpace(os.Getenv("TASKMARKET_PORT")); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid TASKMARKET_PORT %q: %w", v, err)
		}
		c.Port = port
	}
	if v := strings.TrimSpace(os.Getenv("TASKMARKET_HEARTBEAT_TTL_SECONDS")); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid TASKMARKET_HEARTBEAT_TTL_SECONDS %q: %w", v, err)
		}
		c.HeartbeatTTL = time.Duration(secs) * time.Second
	}
	if v := strings.TrimSpace(os.Getenv("TASKMARKET_LEASE_SECONDS")); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid TASKMARKET_LEASE_SECONDS %q: %w", v, err)
		}
		c.LeaseSeconds = time.Duration(secs) * time.Second
	}
	if v := strings.TrimSpace(os.Getenv("TASKMARKET_REQUEUE_SWEEP_SECONDS")); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid TASKMARKET_REQUEUE_SWEEP_SECONDS %q: %w", v, err)
		}
		c.RequeueSweepSeconds = time.Duration(secs) * time.Second
	}
	if v := strings.TrimSpace(os.Getenv("TASKMARKET_MAX_ATTEMPTS_DEFAULT")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid TASKMARKET_MAX_ATTEMPTS_DEFAULT %q: %w", v, err)
		}
		c.MaxAttemptsDefault = n
	}
	if v := strings.TrimSpace(os.Getenv("TASKMARKET_REQUIRED_SUBMISSIONS_DEFAULT")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid TASKMARKET_REQUIRED_SUBMISSIONS_DEFAULT %q: %w", v, err)
		}
		c.RequiredSubmissionsDefault = n
	}
	return nil
}
