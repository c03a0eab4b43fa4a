package tracestore

import (
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenario_FullDeployment(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(clock, 0, 0)

	s.StartTrace("s1", "https://github.com/a/b", nil)
	clock.Advance(time.Second)
	_, err := s.AddStep("s1", "clone", StatusSuccess, nil)
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, err = s.AddStep("s1", "deploy", StatusInProgress, nil)
	require.NoError(t, err)
	clock.Advance(4 * time.Second)
	s.UpdateStep("s1", "deploy", StepUpdate{Status: statusPtr(StatusSuccess)})
	_, err = s.CompleteTrace("s1", StatusSuccess, "my-app")
	require.NoError(t, err)

	trace := s.GetTrace("s1")
	assert.Equal(t, StatusSuccess, trace.Status)
	assert.Equal(t, "my-app", trace.ApplicationName)
	require.Len(t, trace.Steps, 2)
	require.NotNil(t, trace.Steps[1].Duration)
	assert.Equal(t, int64(4000), *trace.Steps[1].Duration)
	assert.Equal(t, int64(6000), *trace.TotalDuration)
}

func TestScenario_RetryAfterFailure(t *testing.T) {
	s := newTestStore(newFakeClock(), 0, 0)

	s.StartTrace("s2", "", nil)
	_, err := s.AddStep("s2", "build", StatusFailed, &StepExtra{Error: "oom"})
	require.NoError(t, err)
	_, err = s.AddStep("s2", "build", StatusSuccess, nil)
	require.NoError(t, err)

	summary := s.GetTraceSummary("s2")
	require.NotNil(t, summary)
	assert.Equal(t, 1, summary.FailureCount)
	assert.Equal(t, 1, summary.SuccessCount)
	assert.Equal(t, StatusFailed, summary.Status)
	assert.Equal(t, "build", summary.FailedStep)
}

func TestTraceJSONFieldNames(t *testing.T) {
	s := newTestStore(newFakeClock(), 0, 0)
	s.StartTrace("s1", "https://github.com/a/b", nil)
	_, _ = s.AddStep("s1", "clone", StatusSuccess, nil)

	raw, err := json.Marshal(s.GetTrace("s1"))
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	for _, key := range []string{"sessionId", "repoUrl", "startTime", "status", "steps"} {
		assert.Contains(t, decoded, key)
	}

	raw, err = json.Marshal(s.GetTraceSummary("s1"))
	require.NoError(t, err)
	decoded = map[string]interface{}{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	for _, key := range []string{"sessionId", "status", "stepCount", "successCount", "failureCount"} {
		assert.Contains(t, decoded, key)
	}
}

func TestNewSessionID(t *testing.T) {
	pattern := regexp.MustCompile(`^nx_[0-9a-z]+_[0-9a-z]{6}$`)

	id := NewSessionID("")
	assert.Regexp(t, pattern, id)
	assert.Regexp(t, `^deploy_`, NewSessionID("deploy"))

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		seen[NewSessionID("nx")] = true
	}
	assert.Greater(t, len(seen), 90)
}
