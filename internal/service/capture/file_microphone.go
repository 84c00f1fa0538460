package capture

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"
)

//go:embed assets/practice.wav
var practiceWAV []byte

// FileMicrophone replays a PCM WAV file as if it were a live device.
// Each recording span replays the file from the start, paced in real time.
// An empty Path replays the bundled practice recording.
type FileMicrophone struct {
	Path      string
	FrameSize int  // samples per chunk
	Realtime  bool // pace chunks at the audio rate
}

// Acquire loads the file. Permission errors on the file map to
// ErrPermissionDenied; a missing file maps to ErrDeviceUnavailable.
func (m *FileMicrophone) Acquire(ctx context.Context) (Stream, error) {
	format, pcm, err := m.load()
	if err != nil {
		return nil, err
	}

	frame := m.FrameSize
	if frame <= 0 {
		frame = format.SampleRate / 10
	}
	chunkBytes := frame * format.Channels * format.BitsPerSample / 8
	if chunkBytes <= 0 {
		return nil, fmt.Errorf("%w: unusable format %+v", ErrDeviceUnavailable, format)
	}

	var interval time.Duration
	if m.Realtime && format.BytesPerSecond() > 0 {
		interval = time.Duration(chunkBytes) * time.Second / time.Duration(format.BytesPerSecond())
	}

	return &replayStream{
		format:     format,
		pcm:        pcm,
		chunkBytes: chunkBytes,
		interval:   interval,
	}, nil
}

func (m *FileMicrophone) load() (Format, []byte, error) {
	if m.Path == "" {
		format, pcm, err := DecodeWAV(bytes.NewReader(practiceWAV))
		if err != nil {
			return Format{}, nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
		return format, pcm, nil
	}

	f, err := os.Open(m.Path)
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrPermission):
			return Format{}, nil, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		case errors.Is(err, fs.ErrNotExist):
			return Format{}, nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
		return Format{}, nil, err
	}
	defer f.Close()

	format, pcm, err := DecodeWAV(f)
	if err != nil {
		return Format{}, nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	return format, pcm, nil
}

// replayStream serves an in-memory PCM buffer chunk by chunk.
type replayStream struct {
	format     Format
	pcm        []byte
	chunkBytes int
	interval   time.Duration

	mu     sync.Mutex
	stop   chan struct{}
	done   chan struct{}
	closed bool
}

func (s *replayStream) Format() Format {
	return s.format
}

func (s *replayStream) Start(onData func(chunk []byte)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.stop != nil {
		return nil
	}

	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(onData, s.stop, s.done)
	return nil
}

func (s *replayStream) run(onData func([]byte), stop, done chan struct{}) {
	defer close(done)

	var tick <-chan time.Time
	if s.interval > 0 {
		t := time.NewTicker(s.interval)
		defer t.Stop()
		tick = t.C
	}

	for off := 0; off < len(s.pcm); off += s.chunkBytes {
		if tick != nil {
			select {
			case <-stop:
				return
			case <-tick:
			}
		} else {
			select {
			case <-stop:
				return
			default:
			}
		}

		end := off + s.chunkBytes
		if end > len(s.pcm) {
			end = len(s.pcm)
		}
		chunk := make([]byte, end-off)
		copy(chunk, s.pcm[off:end])
		onData(chunk)
	}
}

func (s *replayStream) Stop() error {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)
	<-done
	return nil
}

func (s *replayStream) Close() error {
	err := s.Stop()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return err
}
