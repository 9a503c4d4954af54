package device

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned by ReadFrame when no complete frame arrived in
	// time. It is expected and recoverable.
	ErrTimeout = errors.New("timed out waiting for frame")
	// ErrLinkDown is returned by ReadFrame when there is no open link or the
	// link dropped while reading.
	ErrLinkDown = errors.New("device link is down")
)

// ConnectionError reports that the link to the device could not be opened.
type ConnectionError struct {
	Address string
	Reason  string
	Err     error
}

func (e *ConnectionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("failed to connect to %s (%s): %v", e.Address, e.Reason, e.Err)
	}

	return fmt.Sprintf("failed to connect to %s: %v", e.Address, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}
