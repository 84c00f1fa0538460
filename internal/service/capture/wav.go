package capture

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

const wavHeaderSize = 44

// ErrInvalidWAV is returned for files that are not PCM RIFF/WAVE.
var ErrInvalidWAV = errors.New("not a valid PCM WAV file")

// Blob is a finalized recording ready for transcription.
type Blob struct {
	Data       []byte
	MIMEType   string
	Filename   string
	SampleRate int
	Duration   time.Duration
}

// Size returns the encoded size of the recording in bytes.
func (b Blob) Size() int {
	return len(b.Data)
}

// NewBlob wraps raw PCM in a WAV container.
func NewBlob(pcm []byte, f Format) Blob {
	var dur time.Duration
	if bps := f.BytesPerSecond(); bps > 0 {
		dur = time.Duration(len(pcm)) * time.Second / time.Duration(bps)
	}
	return Blob{
		Data:       EncodeWAV(pcm, f),
		MIMEType:   "audio/wav",
		Filename:   "recording.wav",
		SampleRate: f.SampleRate,
		Duration:   dur,
	}
}

// EncodeWAV writes a canonical 44-byte PCM header followed by pcm.
func EncodeWAV(pcm []byte, f Format) []byte {
	blockAlign := f.Channels * f.BitsPerSample / 8

	out := make([]byte, wavHeaderSize+len(pcm))
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+len(pcm)))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(out[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(f.SampleRate*blockAlign))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], uint16(f.BitsPerSample))
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(pcm)))
	copy(out[wavHeaderSize:], pcm)
	return out
}

// DecodeWAV reads a PCM WAV file and returns its format and sample data.
// Chunks other than "fmt " and "data" are skipped.
func DecodeWAV(r io.Reader) (Format, []byte, error) {
	riff := make([]byte, 12)
	if _, err := io.ReadFull(r, riff); err != nil {
		return Format{}, nil, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return Format{}, nil, ErrInvalidWAV
	}

	var (
		f       Format
		haveFmt bool
	)
	hdr := make([]byte, 8)
	for {
		if _, err := io.ReadFull(r, hdr); err != nil {
			return Format{}, nil, fmt.Errorf("%w: missing data chunk", ErrInvalidWAV)
		}
		id := string(hdr[0:4])
		size := int64(binary.LittleEndian.Uint32(hdr[4:8]))

		switch id {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil || size < 16 {
				return Format{}, nil, fmt.Errorf("%w: short fmt chunk", ErrInvalidWAV)
			}
			if binary.LittleEndian.Uint16(body[0:2]) != 1 {
				return Format{}, nil, fmt.Errorf("%w: compressed audio", ErrInvalidWAV)
			}
			f = Format{
				Channels:      int(binary.LittleEndian.Uint16(body[2:4])),
				SampleRate:    int(binary.LittleEndian.Uint32(body[4:8])),
				BitsPerSample: int(binary.LittleEndian.Uint16(body[14:16])),
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return Format{}, nil, fmt.Errorf("%w: data before fmt", ErrInvalidWAV)
			}
			var buf bytes.Buffer
			if _, err := io.CopyN(&buf, r, size); err != nil && !errors.Is(err, io.EOF) {
				return Format{}, nil, err
			}
			return f, buf.Bytes(), nil
		default:
			// Chunks are word aligned
			if _, err := io.CopyN(io.Discard, r, size+size%2); err != nil {
				return Format{}, nil, fmt.Errorf("%w: truncated %q chunk", ErrInvalidWAV, id)
			}
		}
	}
}
