// Package types holds the plain data structures that flow through the
// ingestion pipeline. It has no behavior of its own, mirroring the role
// webhooks.cc/shared/types plays for the CLI and receiver.
package types

import "time"

// BreadcrumbLevel is the severity of a Breadcrumb.
type BreadcrumbLevel string

const (
	LevelDebug   BreadcrumbLevel = "debug"
	LevelInfo    BreadcrumbLevel = "info"
	LevelWarning BreadcrumbLevel = "warning"
	LevelError   BreadcrumbLevel = "error"
)

// Breadcrumb is a log crumb captured out-of-band by the host application's
// breadcrumb recorder (an external collaborator) and snapshotted into an
// ErrorReport at format time.
type Breadcrumb struct {
	Message   string          `json:"message"`
	Category  string          `json:"category"`
	Level     BreadcrumbLevel `json:"level"`
	Timestamp time.Time       `json:"timestamp"`
	Data      map[string]any  `json:"data,omitempty"`
}

// BrowserSnapshot is the optional environment snapshot attached to a report
// by the external environment snapshotter.
type BrowserSnapshot struct {
	UserAgent string `json:"userAgent,omitempty"`
	Viewport  string `json:"viewport,omitempty"`
	Language  string `json:"language,omitempty"`
}

// RequestSnapshot captures the URL/referrer of the page where the error
// occurred.
type RequestSnapshot struct {
	URL       string `json:"url,omitempty"`
	Referrer  string `json:"referrer,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
}

// ErrorReport is the unit that flows through the pipeline, from capture to
// delivery, offline queueing, or a dropped-with-reason outcome.
//
// Invariant: once a report exits the format stage, no stage except the
// Redactor may mutate Message, StackTrace, Context, User, Breadcrumbs.
type ErrorReport struct {
	Message        string         `json:"message"`
	ExceptionClass string         `json:"exceptionClass"`
	StackTrace     string         `json:"stackTrace,omitempty"`
	File           string         `json:"file"`
	Line           int            `json:"line"`
	Project        string         `json:"project"`
	Environment    string         `json:"environment"`
	Timestamp      time.Time      `json:"timestamp"`
	SessionID      string         `json:"sessionId"`

	User        map[string]any  `json:"user,omitempty"`
	Context     map[string]any  `json:"context,omitempty"`
	Breadcrumbs []Breadcrumb    `json:"breadcrumbs,omitempty"`
	Browser     *BrowserSnapshot `json:"browser,omitempty"`
	Request     *RequestSnapshot `json:"request,omitempty"`
	CommitHash  string          `json:"commitHash,omitempty"`
	Version     string          `json:"version,omitempty"`
	CustomData  map[string]any  `json:"customData,omitempty"`
}

// Fingerprint returns a short opaque identity derived from Message, File
// and Line, used only for duplicate suppression.
func (r *ErrorReport) Fingerprint() string {
	return Fingerprint(r.Message, r.File, r.Line)
}

// QueuedItem is one entry in the Offline Queue's durable FIFO.
type QueuedItem struct {
	ID         string      `json:"id"`
	Report     ErrorReport `json:"report"`
	EnqueuedAt time.Time   `json:"enqueuedAt"`
	Attempts   int         `json:"attempts"`
}

// BatchEnvelope wraps one or more admitted reports for a single POST.
type BatchEnvelope struct {
	BatchID   string        `json:"batchId"`
	CreatedAt time.Time     `json:"createdAt"`
	Count     int           `json:"count"`
	Reports   []ErrorReport `json:"reports"`
}

// CircuitState is one of the three states of the Circuit Breaker.
type CircuitState string

const (
	StateClosed   CircuitState = "CLOSED"
	StateOpen     CircuitState = "OPEN"
	StateHalfOpen CircuitState = "HALF_OPEN"
)

// QuotaLedger is the durably persisted accounting state for the Quota
// Accountant. BurstTimestamps is pruned to the burst window on every access.
type QuotaLedger struct {
	DailyCount      int       `json:"dailyCount"`
	MonthlyCount    int       `json:"monthlyCount"`
	BurstTimestamps []int64   `json:"burstTimestamps"`
	LastDayKey      string    `json:"lastDayKey"`
	LastMonthKey    string    `json:"lastMonthKey"`
}

// DropReason is the exhaustive set of reasons a report may be dropped
// before reaching the transport or the offline queue. Values match the
// literal strings spec'd for end-to-end scenario assertions.
type DropReason string

const (
	DropSDKDisabled        DropReason = "SDK disabled"
	DropNotInitialized     DropReason = "Not initialized"
	DropValidationFailed   DropReason = "Validation failed"
	DropFilteredByUser     DropReason = "Filtered by user hook"
	DropRateLimited        DropReason = "Rate limit exceeded"
	DropDuplicate          DropReason = "Duplicate error"
	DropQuotaPayloadSize   DropReason = "Quota exceeded: payload size"
	DropQuotaBurst         DropReason = "Quota exceeded: burst"
	DropQuotaDaily         DropReason = "Quota exceeded: daily"
	DropQuotaMonthly       DropReason = "Quota exceeded: monthly"
	DropCircuitOpenNoQueue DropReason = "Circuit open, offline queue disabled"
)

func (d DropReason) String() string { return string(d) }
