//go:build portaudio

package synthesis

import (
	"context"
	"encoding/binary"
	"errors"
	"io"

	"github.com/gordonklaus/portaudio"
)

// PortAudioPlayer plays PCM through the default output device.
type PortAudioPlayer struct {
	FrameSize int
}

func newPortAudioPlayer() (Player, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}
	return &PortAudioPlayer{FrameSize: 1024}, nil
}

// Play streams pcm to the speaker until EOF or cancellation.
func (p *PortAudioPlayer) Play(ctx context.Context, pcm io.Reader, sampleRate int) error {
	out := make([]int16, p.FrameSize)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(sampleRate), len(out), out)
	if err != nil {
		return err
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return err
	}
	defer stream.Stop()

	raw := make([]byte, len(out)*2)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := io.ReadFull(pcm, raw)
		if n > 0 {
			for i := range out {
				if i*2+1 < n {
					out[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
				} else {
					out[i] = 0
				}
			}
			if werr := stream.Write(); werr != nil {
				return werr
			}
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
