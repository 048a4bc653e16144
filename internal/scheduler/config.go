package scheduler

import (
	"os"
	"strings"
	"time"
)

// Config controls scheduler cadence and job selection.
type Config struct {
	// RunInterval is how often the loop wakes up to drain pending runs.
	RunInterval time.Duration
	// ReconcileInterval enqueues a scheduled reconciliation run when > 0.
	// The hot-reloadable engine config takes precedence when it sets one.
	ReconcileInterval time.Duration
	// RecoveryThreshold is how long a run may sit in processing before it
	// counts as abandoned.
	RecoveryThreshold time.Duration
	// EnabledJobs restricts the loop to the named jobs. Empty means all.
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:       15 * time.Second,
		ReconcileInterval: 0,
		RecoveryThreshold: 15 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.ReconcileInterval < 0 {
		c.ReconcileInterval = defaults.ReconcileInterval
	}
	if c.RecoveryThreshold <= 0 {
		c.RecoveryThreshold = defaults.RecoveryThreshold
	}
	return c
}

// ProvideConfig reads scheduler settings from the environment.
func ProvideConfig() Config {
	cfg := DefaultConfig()
	if v := getenvDuration("SCHEDULER_RUN_INTERVAL"); v > 0 {
		cfg.RunInterval = v
	}
	if v := getenvDuration("SCHEDULER_RECONCILE_INTERVAL"); v > 0 {
		cfg.ReconcileInterval = v
	}
	if v := getenvDuration("SCHEDULER_RECOVERY_THRESHOLD"); v > 0 {
		cfg.RecoveryThreshold = v
	}
	if v := strings.TrimSpace(os.Getenv("SCHEDULER_ENABLED_JOBS")); v != "" {
		for _, job := range strings.Split(v, ",") {
			if job = strings.TrimSpace(job); job != "" {
				cfg.EnabledJobs = append(cfg.EnabledJobs, job)
			}
		}
	}
	return cfg
}

func getenvDuration(key string) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return 0
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return parsed
}
