package calendar

import (
	"errors"
	"fmt"
	"time"

	"github.com/kirinyoku/calendar-engine/internal/domain"
	"github.com/kirinyoku/calendar-engine/internal/repository"
)

var ErrPropertyNotFound = errors.New("property not found")

// ConflictError is returned when the calendar is not in the state a command
// requires, for example booking a night that is already booked.
type ConflictError struct {
	Date   time.Time
	Status domain.DayStatus
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("calendar conflict on %s (%s): %s", e.Date.Format(domain.DateLayout), e.Status, e.Reason)
}

// LockTimeoutError means the property lock could not be taken in time. The
// command did not run and may be retried.
type LockTimeoutError struct {
	PropertyID int64
	RetryAfter time.Duration
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("property %d is busy, retry in %s", e.PropertyID, e.RetryAfter)
}

func (e *LockTimeoutError) Unwrap() error {
	return repository.ErrLockTimeout
}

const (
	reasonStateConflict    = "STATE_CONFLICT"
	reasonPropertyNotFound = "PROPERTY_NOT_FOUND"
	reasonLockTimeout      = "LOCK_TIMEOUT"
	reasonValidation       = "VALIDATION"
)
