package identity

import (
	"crypto/rand"
	"fmt"
	"math"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	// nameRegex defines valid relay names: lowercase alphanumeric only, so
	// the name survives the "<name>.<id>.sock" socket file naming.
	nameRegex = regexp.MustCompile(`^[a-z0-9]+$`)
)

// GenerateInstanceID generates the id that makes a relay's socket file unique.
// Format: lowercase ulid().
func GenerateInstanceID() string {
	return strings.ToLower(generateULID())
}

// GenerateSessionID generates a unique bridge session ID using ULID.
// Format: "ses_" + ulid().
func GenerateSessionID() string {
	return "ses_" + generateULID()
}

var (
	ulidMu      sync.Mutex
	ulidEntropy = ulid.Monotonic(rand.Reader, 0)
)

// generateULID generates a ULID string.
func generateULID() string {
	ulidMu.Lock()
	defer ulidMu.Unlock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), ulidEntropy)
	return id.String()
}

// ULIDTimestamp extracts the timestamp from a ULID string. Lowercase ULIDs
// are accepted.
func ULIDTimestamp(s string) (time.Time, error) {
	id, err := ulid.ParseStrict(strings.ToUpper(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse ULID: %w", err)
	}

	ms := id.Time()
	if ms/1000 > uint64(math.MaxInt64) {
		return time.Time{}, fmt.Errorf("ULID timestamp %d exceeds int64 range", ms)
	}
	sec := int64(ms / 1000)      //nolint:gosec // overflow checked above
	nsec := int64(ms%1000) * 1e6 //nolint:gosec // ms%1000 is always < 1000

	return time.Unix(sec, nsec), nil
}

// ValidateName validates a relay name.
//
// Rules:
//   - Allowed characters: lowercase letters (a-z), digits (0-9)
//   - Rejected: underscores, hyphens, dots, spaces, path separators, uppercase
//   - Cannot be empty
//
// Returns nil if valid, error with explanation if invalid.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("relay name cannot be empty")
	}

	if !nameRegex.MatchString(name) {
		return fmt.Errorf("relay name '%s' contains invalid characters; only lowercase letters (a-z) and digits (0-9) are allowed", name)
	}

	return nil
}
