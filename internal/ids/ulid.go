package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// HeaderMessageID is the transport header carrying the id of a posted envelope.
const HeaderMessageID = "x-message-id"

// New returns a time-sortable ULID encoded as a 26-character string.
// Ids created in the same millisecond still sort in creation order.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
