package ids

import (
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"crm-timeentry/internal/domain"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// NewTimeEntryID returns a locally unique, time-ordered entry ID such as
// te_01J5Z8M4Q7X3B2N6V9W0C1D2E3.
func NewTimeEntryID() domain.TimeEntryID {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return domain.TimeEntryID("te_" + ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String())
}
