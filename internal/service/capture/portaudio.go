//go:build portaudio

package capture

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

// PortAudioMicrophone captures from the default input device.
// Requires the PortAudio C library; built with -tags portaudio.
type PortAudioMicrophone struct {
	SampleRate int
	FrameSize  int
}

// Acquire initializes PortAudio and opens the default input stream. The
// operating system refusing the device surfaces as ErrPermissionDenied.
func (m *PortAudioMicrophone) Acquire(ctx context.Context) (Stream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	rate := m.SampleRate
	if rate <= 0 {
		rate = DefaultFormat.SampleRate
	}
	frame := m.FrameSize
	if frame <= 0 {
		frame = 1024
	}

	buf := make([]int16, frame)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(rate), frame, buf)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}

	return &portAudioStream{
		stream: stream,
		buf:    buf,
		format: Format{SampleRate: rate, Channels: 1, BitsPerSample: 16},
	}, nil
}

type portAudioStream struct {
	stream *portaudio.Stream
	buf    []int16
	format Format

	mu      sync.Mutex
	running bool
	done    chan struct{}
}

func (s *portAudioStream) Format() Format {
	return s.format
}

func (s *portAudioStream) Start(onData func(chunk []byte)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	if err := s.stream.Start(); err != nil {
		return err
	}
	s.running = true
	s.done = make(chan struct{})
	go s.readLoop(onData, s.done)
	return nil
}

func (s *portAudioStream) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *portAudioStream) readLoop(onData func([]byte), done chan struct{}) {
	defer close(done)

	for s.isRunning() {
		available, err := s.stream.AvailableToRead()
		if err != nil || available < len(s.buf) {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if err := s.stream.Read(); err != nil {
			time.Sleep(10 * time.Millisecond)
			continue
		}

		chunk := make([]byte, len(s.buf)*2)
		for i, v := range s.buf {
			binary.LittleEndian.PutUint16(chunk[i*2:], uint16(v))
		}
		onData(chunk)
	}
}

func (s *portAudioStream) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	done := s.done
	s.mu.Unlock()

	<-done
	return s.stream.Stop()
}

func (s *portAudioStream) Close() error {
	if err := s.Stop(); err != nil {
		return err
	}
	err := s.stream.Close()
	portaudio.Terminate()
	return err
}
