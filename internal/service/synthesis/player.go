package synthesis

import (
	"context"
	"fmt"
	"io"
)

// Player plays raw 16-bit mono PCM audio.
type Player interface {
	Play(ctx context.Context, pcm io.Reader, sampleRate int) error
}

// DiscardPlayer consumes the audio without output.
type DiscardPlayer struct{}

// Play drains pcm until EOF or cancellation.
func (DiscardPlayer) Play(ctx context.Context, pcm io.Reader, sampleRate int) error {
	buf := make([]byte, 4096)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, err := pcm.Read(buf)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// NewPlayer builds the named audio player.
func NewPlayer(name string) (Player, error) {
	switch name {
	case "", "discard":
		return DiscardPlayer{}, nil
	case "portaudio":
		return newPortAudioPlayer()
	default:
		return nil, fmt.Errorf("unknown audio player %q", name)
	}
}
