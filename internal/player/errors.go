package player

import "fmt"

// LaunchErrorKind classifies a playback start failure.
type LaunchErrorKind string

const (
	PlayerNotFound LaunchErrorKind = "player_not_found"
	SpawnFailed    LaunchErrorKind = "spawn_failed"
)

// LaunchError reports that the media player could not be started.
type LaunchError struct {
	Kind   LaunchErrorKind
	Binary string
	Err    error
}

func (e *LaunchError) Error() string {
	switch e.Kind {
	case PlayerNotFound:
		return fmt.Sprintf("media player %q not found: %v", e.Binary, e.Err)
	default:
		return fmt.Sprintf("start media player %q: %v", e.Binary, e.Err)
	}
}

func (e *LaunchError) Unwrap() error { return e.Err }

// ErrorKind implements the classifier interface used by the CLI.
func (e *LaunchError) ErrorKind() string { return string(e.Kind) }
