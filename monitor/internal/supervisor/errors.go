package supervisor

import (
	"errors"
	"fmt"
)

// ErrAlreadyStarted is returned by Start on a supervisor that has
// already run a session. Each supervisor owns exactly one process.
var ErrAlreadyStarted = errors.New("supervisor: session already started")

// ConfigurationError reports a missing or unusable launch setting.
// No process is spawned.
type ConfigurationError struct {
	Field string
	Path  string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("supervisor: invalid %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("supervisor: invalid %s %q: %v", e.Field, e.Path, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// LaunchError reports that the OS refused to start the producer.
type LaunchError struct {
	Path string
	Err  error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("supervisor: launch %q: %v", e.Path, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}
