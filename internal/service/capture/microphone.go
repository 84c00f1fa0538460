// Package capture owns microphone acquisition and buffering of one
// recording span at a time.
package capture

import (
	"context"
	"errors"
)

// Errors returned by microphones and the capture session.
var (
	ErrPermissionDenied  = errors.New("microphone permission denied")
	ErrDeviceUnavailable = errors.New("microphone device unavailable")
	ErrNotOpen           = errors.New("capture session is not open")
	ErrClosed            = errors.New("capture session is closed")
)

// Format describes raw PCM audio delivered by a stream.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// BytesPerSecond returns the PCM data rate of the format.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * f.BitsPerSample / 8
}

// DefaultFormat is 16kHz 16-bit mono, what speech-to-text backends expect.
var DefaultFormat = Format{SampleRate: 16000, Channels: 1, BitsPerSample: 16}

// Microphone acquires an input device.
// Acquire returns ErrPermissionDenied when access to the device is refused.
type Microphone interface {
	Acquire(ctx context.Context) (Stream, error)
}

// Stream is an acquired input device.
//
// Start begins delivering raw PCM chunks to onData until Stop returns.
// Chunks are whole: a chunk is never split across two onData calls.
// Stop blocks until no further onData call can begin. Close releases
// the device and is safe to call more than once.
type Stream interface {
	Format() Format
	Start(onData func(chunk []byte)) error
	Stop() error
	Close() error
}
