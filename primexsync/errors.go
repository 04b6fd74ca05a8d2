package primexsync

import (
	"errors"
	"fmt"
)

var (
	// ErrLockHeld aborts a run before any remote fetch happens.
	ErrLockHeld = errors.New("sync already in progress")

	// ErrInvalidStep signals protocol misuse by the step caller.
	ErrInvalidStep = errors.New("invalid sync step")

	// ErrRemoteUnavailable wraps gateway transport/auth failures. The
	// engine never retries these itself; retry is the caller's call.
	ErrRemoteUnavailable = errors.New("remote gateway unavailable")

	ErrUnknownSyncType = errors.New("unknown sync type")
)

func remoteFault(err error) error {
	return fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
}
