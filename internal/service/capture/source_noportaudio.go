//go:build !portaudio

package capture

import "fmt"

func newPortAudioMicrophone(SourceConfig) (Microphone, error) {
	return nil, fmt.Errorf("%w: built without portaudio support (use -tags portaudio)", ErrDeviceUnavailable)
}
