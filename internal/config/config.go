// Package config loads and hot-reloads the service's runtime settings:
// upstream NENG location, Postgres/Redis DSNs, the evaluation cycle
// interval, and the role->operation permission map (spec.md §9's
// single auth-gate table). Loading follows the teacher's own layering
// (.env file via joho/godotenv, overridden by process environment),
// and a JSON settings file is watched with fsnotify for the pieces an
// operator may want to change without a restart — the role map and the
// cycle interval — mirroring the teacher's internal/config/watcher.go
// pattern of re-reading a file on an fsnotify event rather than
// requiring a process restart. A reloaded role map takes effect on the
// next request; the evaluation loop reads the cycle interval once at
// startup, so a reloaded interval does not change its cadence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Role is an informational identity the auth-gate middleware maps to a
// set of permitted operations (spec.md §9: "the core does not carry
// its own role enum; it consumes a boolean 'is permitted for
// operation O'"). The names below exist only so the shipped default
// map in DefaultRoleMap has something to key on.
type Role string

const (
	RoleAdministrator Role = "administrator"
	RoleOperator      Role = "operator"
	RoleTechnician    Role = "technician"
	RoleObserver      Role = "observer"
)

// Operation is one gated mutation the Mutation API exposes.
type Operation string

const (
	OpThresholdWrite   Operation = "threshold:write"
	OpMaintenanceWrite Operation = "maintenance:write"
	OpExport           Operation = "export"
)

// Config holds every externally-supplied setting the service needs at
// startup. Fields are resolved once at process start from environment
// variables (optionally loaded from a .env file first, the way the
// teacher's cmd binaries do). cycleInterval and roleMap are additionally
// reloaded via Watcher, so they sit behind mu: Watcher.reload runs on
// its own fsnotify goroutine while requireRole reads IsPermitted from
// request goroutines, and neither field is read or written except
// under mu. CycleInterval is read once at startup to build the
// evaluator, which keeps that value for its lifetime.
type Config struct {
	HTTPAddr    string
	PostgresDSN string
	RedisURL    string
	NENGBaseURL string
	NENGTimeout time.Duration
	CORSOrigins []string

	// MutationRateLimitPerSec and MutationRateLimitBurst bound the
	// Mutation API's inbound request rate (spec.md §9's gate covers who
	// may mutate; this bounds how fast any single caller may).
	MutationRateLimitPerSec float64
	MutationRateLimitBurst  int

	mu            sync.RWMutex
	cycleInterval time.Duration
	roleMap       map[Role]map[Operation]bool
}

// Load resolves configuration from (in increasing precedence) a .env
// file at envPath (if present — a missing file is not an error, per
// joho/godotenv's own convention), then the process environment.
func Load(envPath string) (*Config, error) {
	if envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			if err := godotenv.Load(envPath); err != nil {
				return nil, fmt.Errorf("load env file %s: %w", envPath, err)
			}
		}
	}

	cfg := &Config{
		HTTPAddr:    getEnvDefault("PDUMON_HTTP_ADDR", ":8080"),
		PostgresDSN: os.Getenv("PDUMON_POSTGRES_DSN"),
		RedisURL:    getEnvDefault("PDUMON_REDIS_URL", "redis://localhost:6379/0"),
		NENGBaseURL: os.Getenv("PDUMON_NENG_BASE_URL"),
		NENGTimeout: getEnvDuration("PDUMON_NENG_TIMEOUT", 10*time.Second),
		CORSOrigins: splitCSV(os.Getenv("PDUMON_CORS_ORIGINS")),

		cycleInterval: getEnvDuration("PDUMON_CYCLE_INTERVAL", 30*time.Second),
		roleMap:       DefaultRoleMap(),

		MutationRateLimitPerSec: getEnvFloat("PDUMON_MUTATION_RATE_LIMIT", 5),
		MutationRateLimitBurst:  int(getEnvFloat("PDUMON_MUTATION_RATE_BURST", 10)),
	}

	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("PDUMON_POSTGRES_DSN is required")
	}
	if cfg.NENGBaseURL == "" {
		return nil, fmt.Errorf("PDUMON_NENG_BASE_URL is required")
	}

	return cfg, nil
}

// DefaultRoleMap implements the gate spec.md §4.7 describes:
// Administrator/Operator get every mutation, Technician gets
// maintenance + export only, Observer gets none.
func DefaultRoleMap() map[Role]map[Operation]bool {
	all := map[Operation]bool{OpThresholdWrite: true, OpMaintenanceWrite: true, OpExport: true}
	maintenanceAndExport := map[Operation]bool{OpMaintenanceWrite: true, OpExport: true}
	return map[Role]map[Operation]bool{
		RoleAdministrator: all,
		RoleOperator:      all,
		RoleTechnician:    maintenanceAndExport,
		RoleObserver:      {},
	}
}

// IsPermitted answers the single question the auth-gate middleware
// needs: may role perform op. An unknown role is never permitted. It
// reads roleMap under mu, the same lock SetRoleMap writes under, since
// this is called concurrently from every mutating HTTP request while
// Watcher may be replacing the map from its own fsnotify goroutine.
func (c *Config) IsPermitted(role Role, op Operation) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ops, ok := c.roleMap[role]
	if !ok {
		return false
	}
	return ops[op]
}

// SetRoleMap atomically replaces the role->operation permission map,
// used by Watcher on a settings-file reload.
func (c *Config) SetRoleMap(m map[Role]map[Operation]bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roleMap = m
}

// CycleInterval returns the current evaluation cycle interval.
func (c *Config) CycleInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cycleInterval
}

// SetCycleInterval atomically replaces the evaluation cycle interval,
// used by Watcher on a settings-file reload.
func (c *Config) SetCycleInterval(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cycleInterval = d
}

func getEnvDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func getEnvFloat(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return f
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
