package schedule

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// IDPrefix starts every schedule id, followed by a zero-padded sequence number.
const IDPrefix = "schedule_"

// FormatID renders sequence number n as a schedule id.
func FormatID(n int64) string {
	return fmt.Sprintf("%s%03d", IDPrefix, n)
}

// idSequence extracts the sequence number from a schedule id, if it has one.
func idSequence(id string) (int64, bool) {
	rest, ok := strings.CutPrefix(id, IDPrefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// Store persists schedules. Mutation of an existing schedule goes through
// Update, which reads, applies fn and writes back as one atomic step.
// Returned schedules are copies.
type Store interface {
	// NextID reserves a fresh schedule id. Ids are never handed out twice,
	// even after the schedule holding one is deleted.
	NextID(ctx context.Context) (string, error)
	// Create inserts a schedule. Ids carrying a sequence number advance the
	// sequence so NextID never returns them.
	Create(ctx context.Context, s *Schedule) error
	// Get loads a schedule or returns a not-found error.
	Get(ctx context.Context, id string) (*Schedule, error)
	// List returns every schedule, oldest first.
	List(ctx context.Context) ([]*Schedule, error)
	// ListDue returns active schedules with next_run at or before now, earliest first.
	ListDue(ctx context.Context, now time.Time) ([]*Schedule, error)
	// Update applies fn to the stored schedule and persists the result. If fn
	// returns an error nothing is written and that error is returned as is.
	Update(ctx context.Context, id string, fn func(*Schedule) error) (*Schedule, error)
	// Delete removes a schedule or returns a not-found error.
	Delete(ctx context.Context, id string) error
}
