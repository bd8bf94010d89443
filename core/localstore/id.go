package localstore

import (
	crand "crypto/rand"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(crand.Reader, 0)
)

// GenerateID returns a new ULID string.
// IDs are time-ordered and monotonic within the process, so two IDs generated
// in the same millisecond never collide.
func GenerateID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// LegacyID returns an identifier in the format used by the browser client:
// the current time in milliseconds in base 36 followed by the base 36 digits of
// a random 53-bit fraction, untruncated. Collisions are unlikely, not impossible.
func LegacyID() string {
	var sb strings.Builder
	sb.WriteString(legacyTimestamp(time.Now()))
	sb.WriteString(strconv.FormatUint(rand.Uint64()>>11, 36))
	return sb.String()
}

func legacyTimestamp(t time.Time) string {
	return strconv.FormatInt(t.UnixNano()/int64(time.Millisecond), 36)
}
