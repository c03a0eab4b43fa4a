package tracestore

import (
	"math/rand"
	"strconv"
	"time"
)

// DefaultSessionPrefix is used by NewSessionID when no prefix is given
const DefaultSessionPrefix = "nx"

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewSessionID returns prefix_<base36 unix millis>_<6 random base36 chars>.
// Uniqueness is best effort; IDs are a debugging aid, not an identity.
func NewSessionID(prefix string) string {
	if prefix == "" {
		prefix = DefaultSessionPrefix
	}
	ts := strconv.FormatInt(time.Now().UnixMilli(), 36)

	suffix := make([]byte, 6)
	for i := range suffix {
		suffix[i] = base36[rand.Intn(len(base36))]
	}
	return prefix + "_" + ts + "_" + string(suffix)
}
