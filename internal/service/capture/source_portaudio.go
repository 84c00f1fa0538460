//go:build portaudio

package capture

func newPortAudioMicrophone(cfg SourceConfig) (Microphone, error) {
	return &PortAudioMicrophone{SampleRate: cfg.SampleRate, FrameSize: cfg.FrameSize}, nil
}
