package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the outcome reported for a transaction batch
type Status string

const (
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
	StatusFailed   Status = "failed"
	StatusReversed Status = "reversed"
	StatusRefunded Status = "refunded"
)

// Statuses lists every accepted status in reporting order
var Statuses = []Status{StatusApproved, StatusDenied, StatusFailed, StatusReversed, StatusRefunded}

// Severity is the ordinal alert level, NORMAL < WARNING < CRITICAL
type Severity int

const (
	SeverityNormal Severity = iota
	SeverityWarning
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "WARNING"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "NORMAL"
	}
}

// MarshalText keeps JSON output readable ("CRITICAL" instead of 2)
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	sev, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = sev
	return nil
}

// ParseSeverity accepts the upper- or lower-case level name
func ParseSeverity(v string) (Severity, error) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "NORMAL":
		return SeverityNormal, nil
	case "WARNING":
		return SeverityWarning, nil
	case "CRITICAL":
		return SeverityCritical, nil
	}
	return SeverityNormal, ErrInvalidSeverity
}

// ViolationKind is the machine tag of a rule violation
type ViolationKind string

const (
	ViolationLowVolume ViolationKind = "LOW_VOLUME"
	ViolationSpike     ViolationKind = "VOLUME_SPIKE"
	ViolationDrop      ViolationKind = "VOLUME_DROP"
	ViolationDenied    ViolationKind = "DENIED"
	ViolationFailed    ViolationKind = "FAILED"
	ViolationReversed  ViolationKind = "REVERSED"
	ViolationAuthError ViolationKind = "AUTH_ERROR"
	ViolationZScore    ViolationKind = "ZSCORE"
)

// Violation is one triggered rule together with the evidence behind it
type Violation struct {
	Kind    ViolationKind `json:"kind"`
	Message string        `json:"message"`
	Value   float64       `json:"value"`
}

func (v Violation) String() string {
	return v.Message
}

// Observation is a single transaction-volume sample
type Observation struct {
	Timestamp time.Time `json:"timestamp"`
	Volume    int64     `json:"volume"`
	Status    Status    `json:"status"`
	AuthCode  string    `json:"auth_code"`
}

// Baseline is the running statistical expectation for volume
type Baseline struct {
	Mean float64 `json:"running_mean"`
	Std  float64 `json:"running_std"`
}

// Snapshot carries the numbers behind a detection for observability
type Snapshot struct {
	Volume       int64   `json:"current_count"`
	RunningMean  float64 `json:"running_mean"`
	RunningStd   float64 `json:"running_std"`
	ZScore       float64 `json:"zscore"`
	MLScore      float64 `json:"ml_score"`
	ApprovalRate float64 `json:"approval_rate"`
	Status       Status  `json:"status"`
	AuthCode     string  `json:"auth_code"`
}

// DetectionResult is produced once per observation and never mutated afterwards
type DetectionResult struct {
	IsAnomaly      bool        `json:"is_anomaly"`
	Severity       Severity    `json:"alert_level"`
	Score          float64     `json:"anomaly_score"` // fused, 0-1
	Violations     []Violation `json:"rule_violations"`
	Recommendation string      `json:"recommendation"`
	Snapshot       Snapshot    `json:"metrics"`
}

// ViolationMessages returns the human readable tags in rule order
func (r DetectionResult) ViolationMessages() []string {
	return Messages(r.Violations)
}

// Messages flattens violations into their tags
func Messages(violations []Violation) []string {
	out := make([]string, 0, len(violations))
	for _, v := range violations {
		out = append(out, v.Message)
	}
	return out
}

// AlertContext describes the observation that raised an alert
type AlertContext struct {
	Timestamp time.Time `json:"timestamp"`
	Volume    int64     `json:"count"`
	Status    Status    `json:"status"`
	AuthCode  string    `json:"auth_code"`
}

// AlertEvent is a routed alert as stored in history and handed to channels
type AlertEvent struct {
	ID         uuid.UUID    `json:"id"`
	Timestamp  time.Time    `json:"timestamp"`
	Severity   Severity     `json:"level"`
	Score      float64      `json:"score"`
	Violations []Violation  `json:"violations"`
	Context    AlertContext `json:"transaction"`
}

// Trend is the short-term direction of recent volume
type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// Prediction is a forecast of volume at a future instant
type Prediction struct {
	Timestamp        time.Time `json:"timestamp"`
	PredictedVolume  float64   `json:"predicted_volume"`
	Confidence       float64   `json:"confidence"`
	Trend            Trend     `json:"trend"`
	AlertProbability float64   `json:"alert_probability"`
	Warning          string    `json:"warning,omitempty"`
}

// Pattern is a recurring shape found in the hourly or weekday buckets
type Pattern struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Frequency   string  `json:"frequency"` // hourly, weekly
	Confidence  float64 `json:"confidence"`
	Impact      string  `json:"impact"` // positive, negative, neutral
}
