// Package tracestore keeps an in-memory, bounded record of multi-step deployment
// workflows (clone, analyze, build, configure, deploy) keyed by session ID.
//
// Traces are created by StartTrace, grow through AddStep and UpdateStep, and are
// evicted when the store holds more than MaxTraces: first everything older than
// TTL, then the oldest by start time until the cap holds again. Eviction runs
// after each StartTrace; there is no background sweep.
package tracestore

import (
	"sort"
	"sync"
	"time"
)

const (
	DefaultMaxTraces = 100
	DefaultTTL       = 24 * time.Hour
)

// EventType names a trace lifecycle change reported to the Observer
type EventType string

const (
	EventTraceStarted   EventType = "trace_started"
	EventStepAdded      EventType = "step_added"
	EventStepUpdated    EventType = "step_updated"
	EventTraceCompleted EventType = "trace_completed"
	EventTraceEvicted   EventType = "trace_evicted"
)

// Event describes a single change to the store
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId"`
	Tool      string    `json:"tool,omitempty"`
	Status    Status    `json:"status,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Config for creating a new Store
type Config struct {
	MaxTraces int           // Hard cap on retained traces, default 100
	TTL       time.Duration // Age after which a trace may be evicted, default 24h
	Now       func() time.Time
	// Observer is called with every change, after the store lock is released.
	Observer func(Event)
}

// Store owns all deployment traces
type Store struct {
	mu        sync.RWMutex
	traces    map[string]*Trace
	maxTraces int
	ttl       time.Duration
	now       func() time.Time
	observer  func(Event)
}

// New creates a new trace store
func New(cfg Config) *Store {
	if cfg.MaxTraces <= 0 {
		cfg.MaxTraces = DefaultMaxTraces
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Store{
		traces:    make(map[string]*Trace),
		maxTraces: cfg.MaxTraces,
		ttl:       cfg.TTL,
		now:       cfg.Now,
		observer:  cfg.Observer,
	}
}

// StartTrace creates a new in-progress trace. An existing trace under the same
// session ID is replaced without merging.
func (s *Store) StartTrace(sessionID, repoURL string, metadata map[string]string) *Trace {
	s.mu.Lock()

	now := s.now()
	trace := &Trace{
		SessionID: sessionID,
		RepoURL:   repoURL,
		StartTime: now,
		Status:    StatusInProgress,
		Steps:     []Step{},
	}
	if len(metadata) > 0 {
		trace.Metadata = make(map[string]string, len(metadata))
		for k, v := range metadata {
			trace.Metadata[k] = v
		}
	}
	s.traces[sessionID] = trace

	events := []Event{{Type: EventTraceStarted, SessionID: sessionID, Status: StatusInProgress, Timestamp: now}}
	events = append(events, s.cleanup(now)...)
	result := trace.clone()
	s.mu.Unlock()

	s.emit(events...)
	return result
}

// AddStep appends a step to the session's trace. A failed step marks the whole
// trace failed immediately and the trace stays failed.
func (s *Store) AddStep(sessionID, tool string, status Status, extra *StepExtra) (*Step, error) {
	s.mu.Lock()

	trace, ok := s.traces[sessionID]
	if !ok {
		s.mu.Unlock()
		return nil, &NotFoundError{SessionID: sessionID}
	}

	now := s.now()
	step := Step{
		Tool:      tool,
		Status:    status,
		Timestamp: now,
	}
	if extra != nil {
		step.Message = extra.Message
		step.Data = copyData(extra.Data)
		step.Error = extra.Error
	}
	trace.Steps = append(trace.Steps, step)

	if status == StatusFailed {
		trace.Status = StatusFailed
		trace.EndTime = &now
		trace.TotalDuration = millisSince(now, trace.StartTime)
	}

	result := step.clone()
	s.mu.Unlock()

	s.emit(Event{Type: EventStepAdded, SessionID: sessionID, Tool: tool, Status: status, Timestamp: now})
	return &result, nil
}

// UpdateStep patches the most recent step recorded for tool. Missing traces and
// missing steps are ignored. The step duration is computed once, on the first
// transition into a terminal status.
func (s *Store) UpdateStep(sessionID, tool string, update StepUpdate) {
	s.mu.Lock()

	trace, ok := s.traces[sessionID]
	if !ok {
		s.mu.Unlock()
		return
	}

	idx := -1
	for i := len(trace.Steps) - 1; i >= 0; i-- {
		if trace.Steps[i].Tool == tool {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return
	}

	now := s.now()
	step := &trace.Steps[idx]
	if update.Status != nil && update.Status.IsTerminal() && step.Duration == nil {
		step.Duration = millisSince(now, step.Timestamp)
	}
	if update.Status != nil {
		step.Status = *update.Status
		if *update.Status == StatusFailed && trace.Status != StatusFailed {
			trace.Status = StatusFailed
			trace.EndTime = &now
			trace.TotalDuration = millisSince(now, trace.StartTime)
		}
	}
	if update.Message != nil {
		step.Message = *update.Message
	}
	if update.Data != nil {
		step.Data = copyData(update.Data)
	}
	if update.Error != nil {
		step.Error = *update.Error
	}
	status := step.Status
	s.mu.Unlock()

	s.emit(Event{Type: EventStepUpdated, SessionID: sessionID, Tool: tool, Status: status, Timestamp: now})
}

// CompleteTrace settles the trace with the given status. The first call stamps the
// end time and total duration; later calls only fill in a missing application name.
func (s *Store) CompleteTrace(sessionID string, status Status, applicationName string) (*Trace, error) {
	s.mu.Lock()

	trace, ok := s.traces[sessionID]
	if !ok {
		s.mu.Unlock()
		return nil, &NotFoundError{SessionID: sessionID}
	}

	if trace.completed {
		if trace.ApplicationName == "" && applicationName != "" {
			trace.ApplicationName = applicationName
		}
		result := trace.clone()
		s.mu.Unlock()
		return result, nil
	}

	now := s.now()
	trace.completed = true
	trace.Status = status
	trace.EndTime = &now
	trace.TotalDuration = millisSince(now, trace.StartTime)
	if applicationName != "" {
		trace.ApplicationName = applicationName
	}
	result := trace.clone()
	s.mu.Unlock()

	s.emit(Event{Type: EventTraceCompleted, SessionID: sessionID, Status: status, Timestamp: now})
	return result, nil
}

// GetTrace returns a copy of the session's trace, or nil
func (s *Store) GetTrace(sessionID string) *Trace {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if trace, ok := s.traces[sessionID]; ok {
		return trace.clone()
	}
	return nil
}

// GetTraceSummary derives a summary of the session's trace, or nil.
// A failed step outranks an explicit successful completion.
func (s *Store) GetTraceSummary(sessionID string) *Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	trace, ok := s.traces[sessionID]
	if !ok {
		return nil
	}
	return summarize(trace)
}

// GetRecentTraces returns at most limit traces, newest first. A negative limit returns all of them.
func (s *Store) GetRecentTraces(limit int) []*Trace {
	if limit == 0 {
		return []*Trace{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	traces := s.sortedLocked()
	if limit > 0 && len(traces) > limit {
		traces = traces[:limit]
	}
	out := make([]*Trace, len(traces))
	for i, trace := range traces {
		out[i] = trace.clone()
	}
	return out
}

// GetTraceSummaries returns summaries of the most recent traces, newest first
func (s *Store) GetTraceSummaries(limit int) []*Summary {
	recent := s.GetRecentTraces(limit)
	summaries := make([]*Summary, 0, len(recent))
	for _, trace := range recent {
		// the trace may have been evicted since the snapshot
		if summary := s.GetTraceSummary(trace.SessionID); summary != nil {
			summaries = append(summaries, summary)
		}
	}
	return summaries
}

// Len returns the number of retained traces
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.traces)
}

func summarize(trace *Trace) *Summary {
	summary := &Summary{
		SessionID:       trace.SessionID,
		RepoURL:         trace.RepoURL,
		ApplicationName: trace.ApplicationName,
		StepCount:       len(trace.Steps),
		StartTime:       trace.StartTime,
	}
	if trace.EndTime != nil {
		end := *trace.EndTime
		summary.EndTime = &end
	}
	if trace.TotalDuration != nil {
		d := *trace.TotalDuration
		summary.TotalDuration = &d
	}

	for _, step := range trace.Steps {
		switch step.Status {
		case StatusSuccess:
			summary.SuccessCount++
		case StatusFailed:
			summary.FailureCount++
			if summary.FailedStep == "" {
				summary.FailedStep = step.Tool
			}
		}
	}

	switch {
	case trace.Status == StatusInProgress:
		summary.Status = StatusInProgress
	case summary.FailureCount > 0:
		summary.Status = StatusFailed
	default:
		summary.Status = StatusSuccess
	}
	return summary
}

// sortedLocked returns the live traces ordered by start time, newest first
// (must be called with lock held)
func (s *Store) sortedLocked() []*Trace {
	traces := make([]*Trace, 0, len(s.traces))
	for _, trace := range s.traces {
		traces = append(traces, trace)
	}
	sort.SliceStable(traces, func(i, j int) bool {
		if traces[i].StartTime.Equal(traces[j].StartTime) {
			return traces[i].SessionID > traces[j].SessionID
		}
		return traces[i].StartTime.After(traces[j].StartTime)
	})
	return traces
}

// cleanup enforces the TTL and the hard cap (must be called with lock held)
func (s *Store) cleanup(now time.Time) []Event {
	if len(s.traces) <= s.maxTraces {
		return nil
	}

	var events []Event
	for id, trace := range s.traces {
		if now.Sub(trace.StartTime) > s.ttl {
			delete(s.traces, id)
			events = append(events, Event{Type: EventTraceEvicted, SessionID: id, Timestamp: now})
		}
	}

	for len(s.traces) > s.maxTraces {
		id := s.oldestLocked()
		if id == "" {
			break
		}
		delete(s.traces, id)
		events = append(events, Event{Type: EventTraceEvicted, SessionID: id, Timestamp: now})
	}
	return events
}

// oldestLocked finds the trace with the earliest start time (must be called with lock held)
func (s *Store) oldestLocked() string {
	var oldestID string
	var oldestTime time.Time

	for id, trace := range s.traces {
		if oldestID == "" || trace.StartTime.Before(oldestTime) ||
			(trace.StartTime.Equal(oldestTime) && id < oldestID) {
			oldestID = id
			oldestTime = trace.StartTime
		}
	}
	return oldestID
}

func (s *Store) emit(events ...Event) {
	if s.observer == nil {
		return
	}
	for _, event := range events {
		s.observer(event)
	}
}
