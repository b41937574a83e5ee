package transport

import "fmt"

// DriverError wraps a transport-level failure (serial I/O, socket I/O)
// with the name of the driver that produced it, so callers can log a
// consistent "which link" prefix without each driver repeating it.
type DriverError struct {
	Driver string
	Err    error
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("%s: %v", e.Driver, e.Err)
}

func (e *DriverError) Unwrap() error { return e.Err }

// WrapError builds a *DriverError, or returns nil if err is nil.
func WrapError(driver string, err error) error {
	if err == nil {
		return nil
	}
	return &DriverError{Driver: driver, Err: err}
}
