// Package config loads the core's runtime configuration from environment
// variables (and an optional .env file via github.com/joho/godotenv),
// following the same precedence rules as the teacher's data-dir loading:
// CLI flag > environment variable > default.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ProcedureConfig is one entry of controller_procedures[name] = {schedule, params}.
type ProcedureConfig struct {
	Schedule string
	Params   map[string]string
}

// Config is the recognized configuration surface of spec.md §6.
type Config struct {
	// Paths
	DataDir              string
	InternalMonitorsPath string
	SampleMonitorsPath   string
	LoadSampleMonitors   bool

	// Scheduling
	ControllerProcessSchedule string
	MonitorsLoadSchedule      string

	// Concurrency
	ControllerConcurrency int
	ExecutorConcurrency   int
	ExecutorSleep         time.Duration

	// Timeouts
	ExecutorMonitorTimeout        time.Duration
	ExecutorMonitorHeartbeatTime  time.Duration
	ExecutorReactionTimeout       time.Duration
	ExecutorRequestTimeout        time.Duration
	DatabaseAcquireTimeout        time.Duration
	DatabaseQueryTimeout          time.Duration
	DatabaseCloseTimeout          time.Duration
	QueueWaitMessageTime          time.Duration
	QueueVisibilityTime           time.Duration

	// Policies
	MaxIssuesCreation int
	LogAllEvents      bool
	TimeZone          string

	// Housekeeping procedures (spec.md §4.F)
	ControllerProcedures map[string]ProcedureConfig

	// Loader timing constants (spec.md §4.E, §5 open question #3)
	EarlyLoadTime time.Duration
	CoolDownTime  time.Duration

	// Operator HTTP surface
	Port int
	// Optional R2/S3 backup credentials (internal/reliability); backup is
	// disabled when any of these is empty.
	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2Bucket          string

	// Optional Slack notification settings (internal/notify/slack); Slack
	// notifiers are disabled when either is empty.
	SlackToken       string
	SlackMainChannel string
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getenvSeconds(key string, fallbackSeconds int) time.Duration {
	return time.Duration(getenvInt(key, fallbackSeconds)) * time.Second
}

// Load builds a Config from environment variables, optionally overridden by
// a CLI-provided data directory (dataDirFlag, empty string means "use env").
// A local .env file is loaded first, if present, via godotenv - it never
// overrides variables already set in the real environment.
func Load(dataDirFlag ...string) (*Config, error) {
	_ = godotenv.Load() // best-effort; absence of .env is not an error

	dataDir := ""
	if len(dataDirFlag) > 0 && dataDirFlag[0] != "" {
		dataDir = dataDirFlag[0]
	} else if v := os.Getenv("CORE_DATA_DIR"); v != "" {
		dataDir = v
	} else {
		dataDir = "/var/lib/sentinela"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory to absolute: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:              absDataDir,
		InternalMonitorsPath: getenv("CORE_INTERNAL_MONITORS_PATH", filepath.Join(absDataDir, "internal_monitors")),
		SampleMonitorsPath:   getenv("CORE_SAMPLE_MONITORS_PATH", filepath.Join(absDataDir, "sample_monitors")),
		LoadSampleMonitors:   getenvBool("CORE_LOAD_SAMPLE_MONITORS", false),

		ControllerProcessSchedule: getenv("CORE_CONTROLLER_PROCESS_SCHEDULE", "*/10 * * * * *"),
		MonitorsLoadSchedule:      getenv("CORE_MONITORS_LOAD_SCHEDULE", "*/1 * * * *"),

		ControllerConcurrency: getenvInt("CORE_CONTROLLER_CONCURRENCY", 5),
		ExecutorConcurrency:   getenvInt("CORE_EXECUTOR_CONCURRENCY", 10),
		ExecutorSleep:         getenvSeconds("CORE_EXECUTOR_SLEEP", 5),

		ExecutorMonitorTimeout:       getenvSeconds("CORE_EXECUTOR_MONITOR_TIMEOUT", 300),
		ExecutorMonitorHeartbeatTime: getenvSeconds("CORE_EXECUTOR_MONITOR_HEARTBEAT_TIME", 10),
		ExecutorReactionTimeout:      getenvSeconds("CORE_EXECUTOR_REACTION_TIMEOUT", 30),
		ExecutorRequestTimeout:       getenvSeconds("CORE_EXECUTOR_REQUEST_TIMEOUT", 30),
		DatabaseAcquireTimeout:       getenvSeconds("CORE_DATABASE_ACQUIRE_TIMEOUT", 5),
		DatabaseQueryTimeout:         getenvSeconds("CORE_DATABASE_QUERY_TIMEOUT", 30),
		DatabaseCloseTimeout:         getenvSeconds("CORE_DATABASE_CLOSE_TIMEOUT", 10),
		QueueWaitMessageTime:         getenvSeconds("CORE_QUEUE_WAIT_MESSAGE_TIME", 10),
		QueueVisibilityTime:          getenvSeconds("CORE_QUEUE_VISIBILITY_TIME", 30),

		MaxIssuesCreation: getenvInt("CORE_MAX_ISSUES_CREATION", 100),
		LogAllEvents:      getenvBool("CORE_LOG_ALL_EVENTS", false),
		TimeZone:          getenv("CORE_TIME_ZONE", "UTC"),

		ControllerProcedures: map[string]ProcedureConfig{
			"monitors_stuck": {
				Schedule: getenv("CORE_PROCEDURE_MONITORS_STUCK_SCHEDULE", "*/1 * * * *"),
				Params:   map[string]string{"time_tolerance": getenv("CORE_PROCEDURE_MONITORS_STUCK_TOLERANCE", "300")},
			},
			"notifications_alert_solved": {
				Schedule: getenv("CORE_PROCEDURE_NOTIFICATIONS_ALERT_SOLVED_SCHEDULE", "*/1 * * * *"),
			},
			"clean_events": {
				Schedule: getenv("CORE_PROCEDURE_CLEAN_EVENTS_SCHEDULE", "0 0 * * *"),
				Params:   map[string]string{"retention_days": getenv("CORE_PROCEDURE_CLEAN_EVENTS_RETENTION_DAYS", "30")},
			},
		},

		EarlyLoadTime: getenvSeconds("CORE_EARLY_LOAD_TIME", 5),
		CoolDownTime:  getenvSeconds("CORE_COOL_DOWN_TIME", 2),

		Port: getenvInt("CORE_PORT", 8080),

		R2AccountID:       os.Getenv("CORE_R2_ACCOUNT_ID"),
		R2AccessKeyID:     os.Getenv("CORE_R2_ACCESS_KEY_ID"),
		R2SecretAccessKey: os.Getenv("CORE_R2_SECRET_ACCESS_KEY"),
		R2Bucket:          os.Getenv("CORE_R2_BUCKET"),

		SlackToken:       os.Getenv("SLACK_TOKEN"),
		SlackMainChannel: os.Getenv("SLACK_MAIN_CHANNEL"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that EarlyLoadTime and CoolDownTime are positive, that
// EarlyLoadTime is under one minute, and that MaxIssuesCreation and both
// concurrency settings are positive. The one-minute bound stands in for the
// monitors-load schedule's minimum period: MonitorsLoadSchedule itself is not
// parsed, so a sub-minute load schedule with a longer early-load time passes.
func (c *Config) Validate() error {
	if c.EarlyLoadTime <= 0 {
		return fmt.Errorf("early_load_time must be positive")
	}
	if c.CoolDownTime <= 0 {
		return fmt.Errorf("cool_down_time must be positive")
	}
	// A schedule of "every N seconds/minutes" has a minimum period we can
	// sanity check by requiring early-load to be well under a minute - the
	// finest grain any cron expression here realistically supports.
	if c.EarlyLoadTime >= time.Minute {
		return fmt.Errorf("early_load_time (%s) must be strictly less than the monitors load schedule's minimum period", c.EarlyLoadTime)
	}
	if c.MaxIssuesCreation <= 0 {
		return fmt.Errorf("max_issues_creation must be positive")
	}
	if c.ControllerConcurrency <= 0 || c.ExecutorConcurrency <= 0 {
		return fmt.Errorf("concurrency settings must be positive")
	}
	return nil
}

// BackupEnabled reports whether enough R2 credentials were provided to
// enable internal/reliability's off-site backup service.
func (c *Config) BackupEnabled() bool {
	return c.R2AccountID != "" && c.R2AccessKeyID != "" && c.R2SecretAccessKey != "" && c.R2Bucket != ""
}

// SlackEnabled reports whether enough Slack settings were provided to
// enable internal/notify/slack notifications.
func (c *Config) SlackEnabled() bool {
	return c.SlackToken != "" && c.SlackMainChannel != ""
}
