package capture

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEncodeDecodeWAV(t *testing.T) {
	pcm := []byte{1, 0, 2, 0, 3, 0, 4, 0}
	data := EncodeWAV(pcm, DefaultFormat)

	f, got, err := DecodeWAV(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if f != DefaultFormat {
		t.Errorf("expected %+v, got %+v", DefaultFormat, f)
	}
	if !bytes.Equal(got, pcm) {
		t.Errorf("expected %v, got %v", pcm, got)
	}
}

func TestDecodeWAV_SkipsUnknownChunks(t *testing.T) {
	data := EncodeWAV([]byte{9, 9}, DefaultFormat)

	// Splice a LIST chunk with odd length between fmt and data
	list := []byte{'L', 'I', 'S', 'T', 3, 0, 0, 0, 'a', 'b', 'c', 0}
	spliced := append(append(append([]byte{}, data[:36]...), list...), data[36:]...)

	_, pcm, err := DecodeWAV(bytes.NewReader(spliced))
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if !bytes.Equal(pcm, []byte{9, 9}) {
		t.Errorf("unexpected pcm %v", pcm)
	}
}

func TestDecodeWAV_Invalid(t *testing.T) {
	if _, _, err := DecodeWAV(bytes.NewReader([]byte("not a wav file at all"))); !errors.Is(err, ErrInvalidWAV) {
		t.Errorf("expected ErrInvalidWAV, got %v", err)
	}
}

func TestNewBlob_Duration(t *testing.T) {
	blob := NewBlob(make([]byte, 32000), DefaultFormat)
	if blob.Duration != time.Second {
		t.Errorf("expected 1s, got %v", blob.Duration)
	}
}

func TestFileMicrophone_Replay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.wav")
	if err := os.WriteFile(path, EncodeWAV(make([]byte, 3200), DefaultFormat), 0o600); err != nil {
		t.Fatal(err)
	}

	s := NewSession(&FileMicrophone{Path: path, FrameSize: 400})
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	s.Start()
	deadline := time.Now().Add(2 * time.Second)
	for s.Info().AccumulatedAudioBytes < 3200 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	blob, _ := s.Stop()
	if blob.Size() != wavHeaderSize+3200 {
		t.Errorf("expected the whole file replayed, got %d PCM bytes", blob.Size()-wavHeaderSize)
	}
}

func TestFileMicrophone_MissingFile(t *testing.T) {
	mic := &FileMicrophone{Path: filepath.Join(t.TempDir(), "missing.wav")}
	if _, err := mic.Acquire(context.Background()); !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("expected ErrDeviceUnavailable, got %v", err)
	}
}

func TestFileMicrophone_BundledSample(t *testing.T) {
	mic, err := NewMicrophone(SourceConfig{Source: "wav", FrameSize: 1600})
	if err != nil {
		t.Fatalf("NewMicrophone: %v", err)
	}

	stream, err := mic.Acquire(context.Background())
	if err != nil {
		t.Fatalf("expected the bundled sample to load, got %v", err)
	}
	defer stream.Close()

	if stream.Format() != DefaultFormat {
		t.Errorf("expected %+v, got %+v", DefaultFormat, stream.Format())
	}
	if rs, ok := stream.(*replayStream); !ok || len(rs.pcm) < DefaultFormat.BytesPerSecond() {
		t.Errorf("expected at least a second of audio in the bundled sample")
	}
}
