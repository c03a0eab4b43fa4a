package tracestore

import (
	"errors"
	"fmt"
	"time"
)

// Status represents the state of a deployment step or trace
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
)

// IsTerminal reports whether a step in this status is finished.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusSkipped
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusSuccess, StatusFailed, StatusSkipped:
		return true
	}
	return false
}

// Step is one action within a deployment workflow
type Step struct {
	Tool      string                 `json:"tool"`
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Duration  *int64                 `json:"duration,omitempty"` // milliseconds
	Message   string                 `json:"message,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// StepExtra carries the optional diagnostic payload of a new step
type StepExtra struct {
	Message string
	Data    map[string]interface{}
	Error   string
}

// StepUpdate is a field-level patch for an existing step. Nil fields are left untouched.
type StepUpdate struct {
	Status  *Status
	Message *string
	Data    map[string]interface{}
	Error   *string
}

// Trace is one deployment workflow, keyed by session ID
type Trace struct {
	SessionID       string            `json:"sessionId"`
	RepoURL         string            `json:"repoUrl,omitempty"`
	ApplicationName string            `json:"applicationName,omitempty"`
	StartTime       time.Time         `json:"startTime"`
	EndTime         *time.Time        `json:"endTime,omitempty"`
	TotalDuration   *int64            `json:"totalDuration,omitempty"` // milliseconds
	Status          Status            `json:"status"`
	Steps           []Step            `json:"steps"`
	Metadata        map[string]string `json:"metadata,omitempty"`

	completed bool
}

// Summary is a point-in-time digest of a trace
type Summary struct {
	SessionID       string     `json:"sessionId"`
	RepoURL         string     `json:"repoUrl,omitempty"`
	ApplicationName string     `json:"applicationName,omitempty"`
	Status          Status     `json:"status"`
	StepCount       int        `json:"stepCount"`
	SuccessCount    int        `json:"successCount"`
	FailureCount    int        `json:"failureCount"`
	FailedStep      string     `json:"failedStep,omitempty"`
	StartTime       time.Time  `json:"startTime"`
	EndTime         *time.Time `json:"endTime,omitempty"`
	TotalDuration   *int64     `json:"totalDuration,omitempty"`
}

// Metadata keys captured at trace start
const (
	MetaUserID          = "userId"
	MetaClientType      = "clientType"
	MetaProtocolVersion = "protocolVersion"
)

// ErrNotFound is returned when an operation references a session without a trace
var ErrNotFound = errors.New("trace not found")

// NotFoundError names the session that has no trace
type NotFoundError struct {
	SessionID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no deployment trace for session %q", e.SessionID)
}

// Is lets errors.Is match ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func (s Step) clone() Step {
	if s.Duration != nil {
		d := *s.Duration
		s.Duration = &d
	}
	s.Data = copyData(s.Data)
	return s
}

func (t *Trace) clone() *Trace {
	c := *t
	if t.EndTime != nil {
		end := *t.EndTime
		c.EndTime = &end
	}
	if t.TotalDuration != nil {
		d := *t.TotalDuration
		c.TotalDuration = &d
	}
	c.Steps = make([]Step, len(t.Steps))
	for i, step := range t.Steps {
		c.Steps[i] = step.clone()
	}
	if t.Metadata != nil {
		c.Metadata = make(map[string]string, len(t.Metadata))
		for k, v := range t.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

func copyData(data map[string]interface{}) map[string]interface{} {
	if data == nil {
		return nil
	}
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}

func millisSince(now, then time.Time) *int64 {
	ms := now.Sub(then).Milliseconds()
	return &ms
}
