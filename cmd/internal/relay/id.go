package relay

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewMessageID returns a ULID used as a message id.
// ULIDs are lexicographically sortable, which keeps log and store ordering
// readable. The same generator serves both user- and bot-originated messages
// so id uniqueness never depends on send timing.
func NewMessageID(now time.Time) string {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return newRandomHex(16)
	}
	return id.String()
}

// newRandomHex returns a cryptographically secure random hex string of
// length 2*nBytes. Fallback id source when ULID construction fails.
func newRandomHex(nBytes int) string {
	if nBytes <= 0 {
		nBytes = 16
	}

	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	return hex.EncodeToString(b)
}
