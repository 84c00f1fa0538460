package synthesis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"speaking-practice/internal/observability/logging"
)

// DefaultElevenLabsVoiceID is used when no voice was selected.
const DefaultElevenLabsVoiceID = "21m00Tcm4TlvDq8ikWAM"

// ElevenLabsConfig holds ElevenLabs TTS settings.
type ElevenLabsConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	SampleRate int
	HTTPClient *http.Client
	Player     Player
}

// ElevenLabsEngine speaks through the ElevenLabs HTTP streaming endpoint.
// The voice list is fetched in the background after construction.
type ElevenLabsEngine struct {
	cfg    ElevenLabsConfig
	client *http.Client
	player Player
	logger zerolog.Logger

	mu     sync.Mutex
	voices []Voice
	loaded chan struct{}
	cancel context.CancelFunc
}

// NewElevenLabsEngine creates the engine and starts loading voices.
func NewElevenLabsEngine(ctx context.Context, cfg ElevenLabsConfig) *ElevenLabsEngine {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.elevenlabs.io"
	}
	if cfg.Model == "" {
		cfg.Model = "eleven_flash_v2_5"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	player := cfg.Player
	if player == nil {
		player = DiscardPlayer{}
	}

	e := &ElevenLabsEngine{
		cfg:    cfg,
		client: client,
		player: player,
		logger: logging.WithBackend("synthesis", "elevenlabs"),
		loaded: make(chan struct{}),
	}
	go e.loadVoices(ctx)
	return e
}

type voicesResponse struct {
	Voices []struct {
		VoiceID string            `json:"voice_id"`
		Name    string            `json:"name"`
		Labels  map[string]string `json:"labels"`
	} `json:"voices"`
}

func (e *ElevenLabsEngine) loadVoices(ctx context.Context) {
	defer close(e.loaded)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.cfg.BaseURL+"/v1/voices", nil)
	if err != nil {
		e.logger.Error().Err(err).Msg("Failed to build voices request")
		return
	}
	req.Header.Set("xi-api-key", e.cfg.APIKey)

	resp, err := e.client.Do(req)
	if err != nil {
		e.logger.Error().Err(err).Msg("Failed to load voices")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		e.logger.Error().Int("status", resp.StatusCode).Str("body", string(b)).Msg("Failed to load voices")
		return
	}

	var body voicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		e.logger.Error().Err(err).Msg("Failed to decode voices")
		return
	}

	voices := make([]Voice, 0, len(body.Voices))
	for _, v := range body.Voices {
		voices = append(voices, Voice{
			ID:     v.VoiceID,
			Name:   v.Name,
			Lang:   langFromAccent(v.Labels["accent"]),
			Gender: v.Labels["gender"],
		})
	}

	e.mu.Lock()
	e.voices = voices
	e.mu.Unlock()
	e.logger.Info().Int("voices", len(voices)).Msg("Voices loaded")
}

// langFromAccent maps ElevenLabs accent labels onto locales.
func langFromAccent(accent string) string {
	switch strings.ToLower(accent) {
	case "american":
		return "en-US"
	case "british":
		return "en-GB"
	case "australian":
		return "en-AU"
	case "irish":
		return "en-IE"
	case "indian":
		return "en-IN"
	default:
		return "en"
	}
}

// Voices returns the voices loaded so far.
func (e *ElevenLabsEngine) Voices() []Voice {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Voice, len(e.voices))
	copy(out, e.voices)
	return out
}

// VoicesChanged is closed once the voice list request has finished.
func (e *ElevenLabsEngine) VoicesChanged() <-chan struct{} {
	return e.loaded
}

// Speak requests the audio stream and hands it to the player.
func (e *ElevenLabsEngine) Speak(u Utterance, cb Callbacks) error {
	if e.cfg.APIKey == "" {
		return errors.New("elevenlabs: api key missing")
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
	}
	e.cancel = cancel
	e.mu.Unlock()

	voiceID := DefaultElevenLabsVoiceID
	if u.Voice != nil && u.Voice.ID != "" {
		voiceID = u.Voice.ID
	}

	go func() {
		defer cancel()
		err := e.stream(ctx, voiceID, u, cb.OnStart)
		switch {
		case ctx.Err() != nil:
			if cb.OnError != nil {
				cb.OnError(ErrInterrupted)
			}
		case err != nil:
			if cb.OnError != nil {
				cb.OnError(err)
			}
		default:
			if cb.OnEnd != nil {
				cb.OnEnd()
			}
		}
	}()
	return nil
}

// Cancel interrupts the stream in flight.
func (e *ElevenLabsEngine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
}

func (e *ElevenLabsEngine) stream(ctx context.Context, voiceID string, u Utterance, onStart func()) error {
	q := url.Values{}
	q.Set("output_format", fmt.Sprintf("pcm_%d", e.cfg.SampleRate))
	endpoint := e.cfg.BaseURL + "/v1/text-to-speech/" + url.PathEscape(voiceID) + "/stream?" + q.Encode()

	body := map[string]any{
		"model_id": e.cfg.Model,
		"text":     u.Text,
		"voice_settings": map[string]any{
			"stability":         0.4,
			"similarity_boost":  0.7,
			"use_speaker_boost": true,
			"speed":             clampSpeed(u.Rate),
		},
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("xi-api-key", e.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("elevenlabs http stream error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("elevenlabs http status=%d body=%s", resp.StatusCode, string(b))
	}

	return e.player.Play(ctx, &startReader{r: resp.Body, onStart: onStart}, e.cfg.SampleRate)
}

// startReader fires onStart when the first audio bytes arrive.
type startReader struct {
	r       io.Reader
	onStart func()
	once    sync.Once
}

func (s *startReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if n > 0 && s.onStart != nil {
		s.once.Do(s.onStart)
	}
	return n, err
}

// clampSpeed keeps the rate inside the range the API accepts.
func clampSpeed(rate float64) float64 {
	if rate <= 0 {
		return 1.0
	}
	return math.Max(0.7, math.Min(1.2, rate))
}
