//go:build !cgo || nocgo

package player

import (
	"context"
	"errors"
)

// ErrUnavailable is returned by Play in builds without cgo.
var ErrUnavailable = errors.New("audio playback not available in this build")

// Play is unavailable without cgo.
func Play(ctx context.Context, path string) error {
	return ErrUnavailable
}
