package common

import (
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// RateLimitConfig bounds how often one kind of log entry is emitted
type RateLimitConfig struct {
	PerSecond float64 // Sustained entries per second per key (0 = unlimited)
	Burst     int     // Entries allowed in a burst per key
}

// RateLimitedLogger drops repeated entries beyond a per-key budget.
// The key is the level plus the message text, so a noisy tool cannot drown
// out unrelated entries. Dropped entries are counted and the count is
// attached to the next admitted entry for the same key as "suppressed".
type RateLimitedLogger struct {
	logger *ContextLogger
	config RateLimitConfig

	mu         sync.Mutex
	limiters   map[string]*rate.Limiter
	suppressed map[string]int
}

// NewRateLimitedLogger wraps a ContextLogger (nil uses the global Logger)
func NewRateLimitedLogger(logger *ContextLogger, config RateLimitConfig) *RateLimitedLogger {
	if logger == nil {
		logger = NewContextLogger(nil, nil)
	}
	if config.Burst <= 0 {
		config.Burst = 1
	}
	return &RateLimitedLogger{
		logger:     logger,
		config:     config,
		limiters:   make(map[string]*rate.Limiter),
		suppressed: make(map[string]int),
	}
}

// Logger returns the wrapped logger
func (rl *RateLimitedLogger) Logger() *ContextLogger {
	return rl.logger
}

// Suppressed returns how many entries are currently held back for level+msg
func (rl *RateLimitedLogger) Suppressed(level logrus.Level, msg string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.suppressed[limiterKey(level, msg)]
}

// admit reports whether an entry may be written and how many were dropped before it
func (rl *RateLimitedLogger) admit(level logrus.Level, msg string) (bool, int) {
	if rl.config.PerSecond <= 0 {
		return true, 0
	}

	key := limiterKey(level, msg)
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, ok := rl.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(rl.config.PerSecond), rl.config.Burst)
		rl.limiters[key] = limiter
	}
	if !limiter.Allow() {
		rl.suppressed[key]++
		return false, 0
	}
	dropped := rl.suppressed[key]
	delete(rl.suppressed, key)
	return true, dropped
}

// Entry logs msg with fields at level, subject to the rate limit.
// It reports whether the entry was written.
func (rl *RateLimitedLogger) Entry(level logrus.Level, fields map[string]interface{}, msg string) bool {
	ok, dropped := rl.admit(level, msg)
	if !ok {
		return false
	}
	logger := rl.logger.WithFields(fields)
	if dropped > 0 {
		logger = logger.WithField("suppressed", dropped)
	}
	logger.Log(level, msg)
	return true
}

// Debug logs at debug level
func (rl *RateLimitedLogger) Debug(fields map[string]interface{}, msg string) bool {
	return rl.Entry(logrus.DebugLevel, fields, msg)
}

// Info logs at info level
func (rl *RateLimitedLogger) Info(fields map[string]interface{}, msg string) bool {
	return rl.Entry(logrus.InfoLevel, fields, msg)
}

// Warn logs at warn level
func (rl *RateLimitedLogger) Warn(fields map[string]interface{}, msg string) bool {
	return rl.Entry(logrus.WarnLevel, fields, msg)
}

// Error logs at error level
func (rl *RateLimitedLogger) Error(fields map[string]interface{}, msg string) bool {
	return rl.Entry(logrus.ErrorLevel, fields, msg)
}

func limiterKey(level logrus.Level, msg string) string {
	return level.String() + "|" + msg
}
