package capture

import "fmt"

// SourceConfig selects a microphone implementation.
type SourceConfig struct {
	Source     string // wav, portaudio
	WAVPath    string
	SampleRate int
	FrameSize  int
}

// NewMicrophone builds the configured microphone.
func NewMicrophone(cfg SourceConfig) (Microphone, error) {
	switch cfg.Source {
	case "", "wav":
		return &FileMicrophone{Path: cfg.WAVPath, FrameSize: cfg.FrameSize, Realtime: true}, nil
	case "portaudio":
		return newPortAudioMicrophone(cfg)
	default:
		return nil, fmt.Errorf("unknown capture source %q", cfg.Source)
	}
}
