package pushback

import (
	"errors"
	"fmt"
)

var (
	// ErrCollisionAborted is returned when a name collision was answered with
	// abort. Nothing on the remote has been created or changed.
	ErrCollisionAborted = errors.New("aborted on name collision")

	// ErrInterrupted marks a transfer stopped by an external signal.
	ErrInterrupted = errors.New("transfer interrupted")

	// ErrRemoteBaseMissing is returned when a target's base directory does not exist.
	ErrRemoteBaseMissing = errors.New("remote base does not exist")
)

// RemoteError is a failure talking to one remote target. It never affects
// other targets.
type RemoteError struct {
	Target string
	Op     string
	Err    error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s on %s: %v", e.Op, e.Target, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }
