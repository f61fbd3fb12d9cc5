package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"time"

	"github.com/hannah-ric/esg-scraper/internal/apperr"
)

// persistenceBackoff is the transient-failure retry schedule for write
// operations: three retries at 100ms, 500ms and 1500ms.
var persistenceBackoff = []time.Duration{
	100 * time.Millisecond,
	500 * time.Millisecond,
	1500 * time.Millisecond,
}

// retryTransient runs op, retrying per persistenceBackoff when the failure
// is transient. Business outcomes (missing row, insufficient credits) and
// context cancellation return immediately.
func retryTransient(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = op()
		if err == nil || !isTransient(err) || attempt >= len(persistenceBackoff) {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(persistenceBackoff[attempt]):
		}
	}
}

// isTransient reports whether an error is worth retrying: a dropped or
// exhausted connection rather than a deliberate outcome. Typed application
// errors are final by construction.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if _, ok := apperr.As(err); ok {
		return false
	}
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, sql.ErrTxDone) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
