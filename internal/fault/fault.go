// Package fault classifies pipeline failures so callers can decide whether
// to retry, fail a video, or report an operator error.
package fault

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrTransient marks failures worth retrying: network errors, timeouts,
	// rate limiting.
	ErrTransient = errors.New("transient failure")
	// ErrPermanent marks failures that no retry will fix, such as a video
	// with no transcript.
	ErrPermanent = errors.New("permanent failure")
	// ErrIntegrity marks uniqueness or foreign key violations.
	ErrIntegrity = errors.New("integrity violation")
)

type classified struct {
	kind error
	err  error
}

func (c *classified) Error() string        { return c.err.Error() }
func (c *classified) Unwrap() []error      { return []error{c.kind, c.err} }
func (c *classified) Is(target error) bool { return target == c.kind }

func wrap(kind, err error) error {
	if err == nil {
		return nil
	}
	return &classified{kind: kind, err: err}
}

// Transient marks err as retryable.
func Transient(err error) error { return wrap(ErrTransient, err) }

// Permanent marks err as not retryable.
func Permanent(err error) error { return wrap(ErrPermanent, err) }

// Integrity marks err as a data integrity violation.
func Integrity(err error) error { return wrap(ErrIntegrity, err) }

// Transientf formats a new transient error.
func Transientf(format string, args ...any) error {
	return Transient(fmt.Errorf(format, args...))
}

// Permanentf formats a new permanent error.
func Permanentf(format string, args ...any) error {
	return Permanent(fmt.Errorf(format, args...))
}

// IsPermanent reports whether err was marked permanent.
func IsPermanent(err error) bool { return errors.Is(err, ErrPermanent) }

// IsIntegrity reports whether err is an integrity violation, either marked
// explicitly or reported by the database driver.
func IsIntegrity(err error) bool {
	if errors.Is(err, ErrIntegrity) {
		return true
	}
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
		return true
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case 1062, 1451, 1452, 3819:
			return true
		}
	}
	return false
}

// IsTransient reports whether a capability error should be retried.
// Anything not explicitly permanent or an integrity violation is treated as
// transient, including context deadline expiry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return !IsPermanent(err) && !IsIntegrity(err) && !errors.Is(err, context.Canceled)
}

// ApprovalStateError is returned when an approve, reject or execute call is
// made on a queue item that is not in a state that allows it.
type ApprovalStateError struct {
	ItemID uint
	Op     string
	Status string
	Tier   string
}

func (e *ApprovalStateError) Error() string {
	if e.Tier != "" {
		return fmt.Sprintf("queue item %d: cannot %s (tier %s, status %s)", e.ItemID, e.Op, e.Tier, e.Status)
	}
	return fmt.Sprintf("queue item %d: cannot %s (status %s)", e.ItemID, e.Op, e.Status)
}

// IsApprovalState reports whether err is an *ApprovalStateError.
func IsApprovalState(err error) bool {
	var ae *ApprovalStateError
	return errors.As(err, &ae)
}
