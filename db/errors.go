package db

import (
	"strings"

	"github.com/buzzsnip/buzzsnip/errors"
)

// ErrDatabaseClosed marks work that reached the store after Close, usually a
// worker or tick finishing during shutdown.
var ErrDatabaseClosed = errors.New("database is closed")

var (
	// database/sql reports a closed pool with an unexported error, so match its text
	closedMarkers = []string{"database is closed"}
	busyMarkers   = []string{"database is locked", "SQLITE_BUSY"}
)

func mentions(err error, markers []string) bool {
	msg := err.Error()
	for _, m := range markers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// IsDatabaseClosed reports whether err came from a closed connection pool.
func IsDatabaseClosed(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrDatabaseClosed) || mentions(err, closedMarkers)
}

// IsBusy reports whether SQLite refused a write because another connection
// held the lock past the busy timeout.
func IsBusy(err error) bool {
	return err != nil && mentions(err, busyMarkers)
}
