// Package config holds the pipeline-relevant configuration surface, its
// defaults, and construction-time validation, mirroring the const-block
// default style of apps/cli/internal/api/client.go and
// apps/receiver/main.go rather than a config-file/Viper layer (the teacher
// never reaches for one).
package config

import (
	"fmt"
	"strings"
	"time"

	"errship.dev/sdk/internal/types"
)

// Defaults, named the way client.go names defaultBaseURL/httpTimeout.
const (
	DefaultMaxBreadcrumbs       = 50
	DefaultMaxPayloadSize       = 1 << 20 // 1 MiB
	DefaultTimeout              = 5000 * time.Millisecond
	DefaultMaxRequestsPerMinute = 10
	DefaultDuplicateErrorWindow = 5000 * time.Millisecond
	DefaultMaxRetries           = 3
	DefaultInitialRetryDelay    = 1000 * time.Millisecond
	DefaultMaxRetryDelay        = 30000 * time.Millisecond
	DefaultMaxOfflineQueueSize  = 50
	DefaultOfflineQueueMaxAge   = 86_400_000 * time.Millisecond
	DefaultDailyLimit           = 1000
	DefaultMonthlyLimit         = 10_000
	DefaultBurstLimit           = 50
	DefaultBurstWindow          = 60_000 * time.Millisecond
	DefaultCompressionThreshold = 1024 // bytes
	DefaultBatchSize            = 5
	DefaultBatchTimeout         = 5000 * time.Millisecond
	DefaultMaxBatchPayloadSize  = 102_400 // bytes

	// Circuit breaker defaults; not individually named in spec.md's
	// configuration surface table, which leaves circuit tuning to the
	// component defaults rather than SDK-init options.
	DefaultFailureThreshold = 0.5
	DefaultMinimumRequests  = 10
	DefaultMonitoringPeriod = 60_000 * time.Millisecond
	DefaultResetTimeout     = 30_000 * time.Millisecond
)

// BeforeSendFunc is the user-supplied synchronous filter/transform hook. A
// nil return drops the report.
type BeforeSendFunc func(report *types.ErrorReport) *types.ErrorReport

// Config is the pipeline-relevant configuration surface of spec.md §6. All
// fields are optional except WebhookURL and ProjectName; Default supplies
// everything else.
type Config struct {
	WebhookURL  string
	ProjectName string

	Enabled     bool
	Environment string

	MaxBreadcrumbs int
	MaxPayloadSize int
	Timeout        time.Duration

	MaxRequestsPerMinute int
	DuplicateErrorWindow time.Duration

	MaxRetries        int
	InitialRetryDelay time.Duration
	MaxRetryDelay     time.Duration

	EnableOfflineSupport bool
	MaxOfflineQueueSize  int
	OfflineQueueMaxAge   time.Duration

	RequireHTTPS *bool // nil selects the spec default: true iff Environment == "production"

	DailyLimit    int
	MonthlyLimit  int
	BurstLimit    int
	BurstWindowMs time.Duration

	EnableCompression     bool
	CompressionThreshold  int

	EnableBatching     bool
	BatchSize          int
	BatchTimeout       time.Duration
	MaxBatchPayloadSize int

	FailureThreshold float64 // fraction in [0,1], not tenths (see spec.md §9 open question)
	MinimumRequests  int
	MonitoringPeriod time.Duration
	ResetTimeout     time.Duration

	BeforeSend BeforeSendFunc
	Debug      bool
}

// Default returns a Config with every optional field at its spec'd
// default. Callers still must set WebhookURL and ProjectName.
func Default() Config {
	return Config{
		Enabled:              true,
		MaxBreadcrumbs:       DefaultMaxBreadcrumbs,
		MaxPayloadSize:       DefaultMaxPayloadSize,
		Timeout:              DefaultTimeout,
		MaxRequestsPerMinute: DefaultMaxRequestsPerMinute,
		DuplicateErrorWindow: DefaultDuplicateErrorWindow,
		MaxRetries:           DefaultMaxRetries,
		InitialRetryDelay:    DefaultInitialRetryDelay,
		MaxRetryDelay:        DefaultMaxRetryDelay,
		EnableOfflineSupport: true,
		MaxOfflineQueueSize:  DefaultMaxOfflineQueueSize,
		OfflineQueueMaxAge:   DefaultOfflineQueueMaxAge,
		DailyLimit:           DefaultDailyLimit,
		MonthlyLimit:         DefaultMonthlyLimit,
		BurstLimit:           DefaultBurstLimit,
		BurstWindowMs:        DefaultBurstWindow,
		EnableCompression:    true,
		CompressionThreshold: DefaultCompressionThreshold,
		EnableBatching:       true,
		BatchSize:            DefaultBatchSize,
		BatchTimeout:         DefaultBatchTimeout,
		MaxBatchPayloadSize:  DefaultMaxBatchPayloadSize,
		FailureThreshold:     DefaultFailureThreshold,
		MinimumRequests:      DefaultMinimumRequests,
		MonitoringPeriod:     DefaultMonitoringPeriod,
		ResetTimeout:         DefaultResetTimeout,
	}
}

// RequiresHTTPS resolves the RequireHTTPS tri-state: an explicit value if
// set, else true iff Environment is "production".
func (c Config) RequiresHTTPS() bool {
	if c.RequireHTTPS != nil {
		return *c.RequireHTTPS
	}
	return c.Environment == "production"
}

// Validate checks the fields a constructed SDK cannot safely run without.
// It reports a failure as an error and never panics; errship.New then
// returns that error with a nil Reporter.
func (c Config) Validate() error {
	if strings.TrimSpace(c.WebhookURL) == "" {
		return fmt.Errorf("config: webhookUrl is required")
	}
	if strings.TrimSpace(c.ProjectName) == "" {
		return fmt.Errorf("config: projectName is required")
	}
	if c.RequiresHTTPS() && !strings.HasPrefix(strings.ToLower(c.WebhookURL), "https://") {
		return fmt.Errorf("config: webhookUrl must use https in environment %q", c.Environment)
	}
	if c.MaxPayloadSize <= 0 {
		return fmt.Errorf("config: maxPayloadSize must be positive")
	}
	if c.MaxRequestsPerMinute <= 0 {
		return fmt.Errorf("config: maxRequestsPerMinute must be positive")
	}
	if c.FailureThreshold < 0 || c.FailureThreshold > 1 {
		return fmt.Errorf("config: failureThreshold must be in [0,1]")
	}
	return nil
}
