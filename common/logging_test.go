package common

import (
	"bytes"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestOutputSplitter_Routing tests that entries land on the expected stream
func TestOutputSplitter_Routing(t *testing.T) {
	tests := []struct {
		name       string
		message    string
		wantStderr bool
	}{
		{
			name:       "InfoMessage",
			message:    `time="2024-01-15T10:30:00Z" level=info msg="Server started"`,
			wantStderr: false,
		},
		{
			name:       "WarningMessage",
			message:    `time="2024-01-15T10:30:00Z" level=warning msg="Trace not found"`,
			wantStderr: false,
		},
		{
			name:       "ErrorMessage",
			message:    `time="2024-01-15T10:30:00Z" level=error msg="Platform unreachable"`,
			wantStderr: true,
		},
		{
			name:       "JSONErrorMessage",
			message:    `{"level":"error","msg":"Platform unreachable"}`,
			wantStderr: true,
		},
		{
			name:       "FatalMessage",
			message:    `level=fatal msg="boom"`,
			wantStderr: true,
		},
		{
			name:       "ErrorWordInInfo",
			message:    `level=info msg="error in message but not level"`,
			wantStderr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			splitter := &OutputSplitter{Stdout: &stdout, Stderr: &stderr}

			n, err := splitter.Write([]byte(tt.message))
			require.NoError(t, err)
			assert.Equal(t, len(tt.message), n)

			if tt.wantStderr {
				assert.Equal(t, tt.message, stderr.String())
				assert.Empty(t, stdout.String())
			} else {
				assert.Equal(t, tt.message, stdout.String())
				assert.Empty(t, stderr.String())
			}
		})
	}
}

// TestOutputSplitter_StdioMode tests that stdio mode keeps stdout clean
func TestOutputSplitter_StdioMode(t *testing.T) {
	SetStdioMode(true)
	defer SetStdioMode(false)

	var stdout, stderr bytes.Buffer
	splitter := &OutputSplitter{Stdout: &stdout, Stderr: &stderr}

	_, err := splitter.Write([]byte(`level=info msg="hello"`))
	require.NoError(t, err)
	_, err = splitter.Write([]byte(`level=debug msg="details"`))
	require.NoError(t, err)

	assert.Empty(t, stdout.String())
	assert.Contains(t, stderr.String(), "hello")
	assert.Contains(t, stderr.String(), "details")
}

// TestOutputSplitter_ConcurrentWrites tests concurrent writes
func TestOutputSplitter_ConcurrentWrites(t *testing.T) {
	splitter := &OutputSplitter{Stdout: &lockedBuffer{}, Stderr: &lockedBuffer{}}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			message := []byte("Concurrent message from goroutine")
			n, err := splitter.Write(message)
			assert.NoError(t, err)
			assert.Equal(t, len(message), n)
		}()
	}
	wg.Wait()
}

// TestLogger_Initialization tests that Logger is initialized
func TestLogger_Initialization(t *testing.T) {
	require.NotNil(t, Logger)
	_, ok := Logger.Out.(*OutputSplitter)
	assert.True(t, ok, "Logger should use OutputSplitter")

	hooked := false
	for _, hook := range Logger.Hooks[logrus.InfoLevel] {
		if _, ok := hook.(*SanitizeHook); ok {
			hooked = true
		}
	}
	assert.True(t, hooked, "Logger should carry the SanitizeHook")
}

func TestNewLogger_JSONFormat(t *testing.T) {
	logger := NewLogger(LoggerConfig{Level: LogLevelDebug, Format: "json"})
	var buf bytes.Buffer
	logger.SetOutput(&buf)

	logger.WithField("token", "abcdefghijklmnop").Debug("calling platform")

	out := buf.String()
	assert.Contains(t, out, `"level":"debug"`)
	assert.Contains(t, out, "abcd...mnop")
	assert.NotContains(t, out, "abcdefghijklmnop")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, parseLevel("debug"))
	assert.Equal(t, logrus.WarnLevel, parseLevel("warn"))
	assert.Equal(t, logrus.WarnLevel, parseLevel("warning"))
	assert.Equal(t, logrus.ErrorLevel, parseLevel("error"))
	assert.Equal(t, logrus.InfoLevel, parseLevel("bogus"))
}

func TestContextLogger_Fields(t *testing.T) {
	base := NewContextLogger(nil, map[string]interface{}{"service": "nexlayer-mcp"})
	child := base.WithField("tool", "nexlayer_deploy").WithError(nil)

	assert.Equal(t, map[string]interface{}{"service": "nexlayer-mcp"}, base.Fields())
	assert.Equal(t, "nexlayer_deploy", child.Fields()["tool"])
	assert.NotContains(t, child.Fields(), "error")
}

func TestRecoverPanic(t *testing.T) {
	logger := NewContextLogger(NewLogger(DefaultLoggerConfig()), nil)
	logger.logger.SetOutput(&bytes.Buffer{})

	run := func() (err error) {
		defer RecoverPanic(logger, &err)
		panic("handler exploded")
	}

	err := run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handler exploded")
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}
