//go:build !portaudio

package synthesis

import "errors"

func newPortAudioPlayer() (Player, error) {
	return nil, errors.New("built without portaudio support (use -tags portaudio)")
}
