package scheduler

import (
	"os"
	"strings"
	"time"

	"github.com/smallbiznis/revshare/internal/config"
)

const (
	JobRoyaltyRun    = "royalty_run"
	JobDispatchSweep = "dispatch_sweep"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	Enabled         bool
	RunInterval     time.Duration
	BatchSize       int
	RoyaltyInterval time.Duration
	RoyaltyTimeout  time.Duration
	SweepTimeout    time.Duration
	// EnabledJobs limits the jobs run by this process. Empty runs all.
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		RunInterval:     time.Minute,
		BatchSize:       50,
		RoyaltyInterval: time.Hour,
		RoyaltyTimeout:  15 * time.Minute,
		SweepTimeout:    2 * time.Minute,
	}
}

// ProvideConfig reads SCHEDULER_JOBS as a comma-separated job list.
func ProvideConfig(cfg config.Config) Config {
	c := DefaultConfig()
	c.Enabled = cfg.SchedulerEnabled
	if raw := strings.TrimSpace(os.Getenv("SCHEDULER_JOBS")); raw != "" {
		for _, job := range strings.Split(raw, ",") {
			if job = strings.TrimSpace(job); job != "" {
				c.EnabledJobs = append(c.EnabledJobs, job)
			}
		}
	}
	return c
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.RoyaltyInterval <= 0 {
		c.RoyaltyInterval = defaults.RoyaltyInterval
	}
	if c.RoyaltyTimeout <= 0 {
		c.RoyaltyTimeout = defaults.RoyaltyTimeout
	}
	if c.SweepTimeout <= 0 {
		c.SweepTimeout = defaults.SweepTimeout
	}
	return c
}
