package orders

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewOrderNumber returns a unique human-facing order number: a millisecond
// timestamp followed by random entropy, both encoded by ULID.
func NewOrderNumber(now time.Time) string {
	id := ulid.MustNew(ulid.Timestamp(now), rand.Reader)
	return "ORD-" + strings.ToUpper(id.String())
}
