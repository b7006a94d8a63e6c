// Package player defines the Provider interface for external media playback
// services.
//
// The pipeline drives a player in a fixed sequence per match attempt: locate
// the track, request playback on the selected device, wait briefly, then
// verify the service is actually playing that track. Each step may fail
// transiently (the pipeline keeps searching) or fatally with an [AuthError]
// (the pipeline stops).
package player

import (
	"context"
	"errors"
	"fmt"
)

// Device describes a playback target offered by the service.
type Device struct {
	// ID is the service-internal device identifier.
	ID string

	// Name is the human-readable device name shown during selection.
	Name string

	// Type is the device class reported by the service (e.g., "Computer",
	// "Smartphone").
	Type string
}

// Track is a playable track resolved from a song title.
type Track struct {
	// ID is the service-internal track identifier.
	ID string

	// Name is the track name as the service reports it, used for playback
	// verification.
	Name string
}

// AuthError wraps an authentication failure from the playback service. It is
// the fatal fault class: once raised, the run cannot continue without
// re-authenticating.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("player: authentication failure: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// IsAuthError reports whether err is, or wraps, an [AuthError].
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// Provider is the abstraction over any external playback service.
//
// Implementations must be safe for concurrent use, although the pipeline
// issues calls strictly sequentially.
type Provider interface {
	// Devices lists the playback targets currently available to the
	// authenticated account. An empty list is not an error; the caller
	// decides whether that is fatal.
	Devices(ctx context.Context) ([]Device, error)

	// SetDevice selects the playback target for subsequent StartPlayback
	// calls. The id must come from a Device returned by Devices.
	SetDevice(id string)

	// FindTrack resolves a song title to a playable track, or nil when the
	// service has no result for it.
	FindTrack(ctx context.Context, title string) (*Track, error)

	// StartPlayback asks the service to play the track on the selected
	// device. A nil error means the request was accepted, not that audio is
	// audible — use VerifyPlaying for that.
	StartPlayback(ctx context.Context, track *Track) error

	// VerifyPlaying reports whether the service is currently playing the
	// given track.
	VerifyPlaying(ctx context.Context, track *Track) (bool, error)
}
