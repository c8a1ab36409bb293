package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfig = errors.New("config error")
	ErrTiming = errors.New("timing error")
	ErrData   = errors.New("data error")

	// ErrSessionNotFound is returned when a session id is unknown.
	ErrSessionNotFound = errors.New("session not found")
)

// ConfigError reports an invalid configuration value.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

// TimingError reports a misuse of the scheduler, such as starting it twice.
type TimingError struct {
	Op     string
	Reason string
}

func (e *TimingError) Error() string {
	return fmt.Sprintf("timing error: %s: %s", e.Op, e.Reason)
}

func (e *TimingError) Is(target error) bool { return target == ErrTiming }

// DataError collects problems found while replaying an event log.
// It accompanies a best-effort result, it never replaces one.
type DataError struct {
	Problems []string
}

func (e *DataError) Error() string {
	return fmt.Sprintf("data error: %d problem(s): %s", len(e.Problems), strings.Join(e.Problems, "; "))
}

func (e *DataError) Is(target error) bool { return target == ErrData }

// Addf records a problem.
func (e *DataError) Addf(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

// OrNil returns nil when no problems were recorded.
func (e *DataError) OrNil() error {
	if e == nil || len(e.Problems) == 0 {
		return nil
	}
	return e
}
