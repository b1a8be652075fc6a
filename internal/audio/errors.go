package audio

import "errors"

// Typed capture failures. Callers discriminate with errors.Is; the session
// layer maps these into its terminal failure reasons.
var (
	// ErrPermissionDenied means the host refused access to the audio input.
	ErrPermissionDenied = errors.New("audio input permission denied")

	// ErrDeviceBusy means another capture is already active on this device.
	ErrDeviceBusy = errors.New("capture device busy")

	// ErrInvalidState means the requested transition is not legal from the
	// handle's current state. State is left unchanged.
	ErrInvalidState = errors.New("invalid capture state")
)
