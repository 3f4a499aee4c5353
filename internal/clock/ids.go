// SPDX-License-Identifier: MIT

package clock

import (
	"crypto/rand"
	"sync"

	"github.com/oklog/ulid/v2"
)

var ulidMu sync.Mutex

// NewID returns a 26-character ULID derived from the given clock.
// Monotonic within a process so IDs sort by creation order.
func NewID(c Clock) string {
	ulidMu.Lock()
	defer ulidMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(c.Now()), rand.Reader).String()
}

// ParseID validates a 26-character ULID.
func ParseID(s string) error {
	_, err := ulid.ParseStrict(s)
	return err
}
