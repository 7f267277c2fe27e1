package scheduler

import (
	"errors"
	"fmt"
)

var (
	ErrNotStarted     = errors.New("scheduler not started")
	ErrAlreadyStarted = errors.New("scheduler already started")
	ErrInvalidJob     = errors.New("invalid job")
	ErrDuplicateEntry = errors.New("duplicate crontab entry")
)

// SchedulingError is returned when the scheduler rejects an operation.
type SchedulingError struct {
	Op  string
	Key JobKey
	Err error
}

func (e *SchedulingError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("scheduler %s %q: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("scheduler %s: %v", e.Op, e.Err)
}

func (e *SchedulingError) Unwrap() error { return e.Err }

// CronValidationError reports a malformed cron expression.
type CronValidationError struct {
	Expr   string
	Reason string
	Err    error
}

func (e *CronValidationError) Error() string {
	msg := fmt.Sprintf("invalid cron expression %q", e.Expr)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CronValidationError) Unwrap() error { return e.Err }
