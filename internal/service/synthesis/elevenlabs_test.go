package synthesis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type recordingPlayer struct {
	mu   sync.Mutex
	data []byte
	rate int
}

func (p *recordingPlayer) Play(_ context.Context, pcm io.Reader, sampleRate int) error {
	b, err := io.ReadAll(pcm)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data = append(p.data, b...)
	p.rate = sampleRate
	return err
}

func newElevenLabsServer(t *testing.T, ttsStatus int) (*httptest.Server, func() map[string]any) {
	t.Helper()
	var (
		mu   sync.Mutex
		body map[string]any
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/voices", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("xi-api-key") != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"voices":[
			{"voice_id":"rachel","name":"Rachel","labels":{"accent":"american","gender":"female"}},
			{"voice_id":"george","name":"George","labels":{"accent":"british","gender":"male"}}
		]}`))
	})
	mux.HandleFunc("/v1/text-to-speech/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("output_format") != "pcm_16000" {
			t.Errorf("unexpected output format %q", r.URL.Query().Get("output_format"))
		}
		mu.Lock()
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Unlock()
		if ttsStatus != http.StatusOK {
			w.WriteHeader(ttsStatus)
			_, _ = w.Write([]byte("quota exceeded"))
			return
		}
		_, _ = w.Write(bytes.Repeat([]byte{0x01, 0x02}, 512))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, func() map[string]any {
		mu.Lock()
		defer mu.Unlock()
		return body
	}
}

func waitVoices(t *testing.T, e *ElevenLabsEngine) {
	t.Helper()
	select {
	case <-e.VoicesChanged():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out loading voices")
	}
}

func speakAndWait(t *testing.T, e *ElevenLabsEngine, u Utterance) (bool, error) {
	t.Helper()
	var started bool
	startCh := make(chan struct{}, 1)
	result := make(chan error, 1)
	if err := e.Speak(u, Callbacks{
		OnStart: func() { startCh <- struct{}{} },
		OnEnd:   func() { result <- nil },
		OnError: func(err error) { result <- err },
	}); err != nil {
		return false, err
	}
	select {
	case err := <-result:
		select {
		case <-startCh:
			started = true
		default:
		}
		return started, err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for speech")
		return false, nil
	}
}

func TestElevenLabsEngine_LoadsVoices(t *testing.T) {
	srv, _ := newElevenLabsServer(t, http.StatusOK)
	e := NewElevenLabsEngine(context.Background(), ElevenLabsConfig{APIKey: "test-key", BaseURL: srv.URL})
	waitVoices(t, e)

	voices := e.Voices()
	if len(voices) != 2 {
		t.Fatalf("expected 2 voices, got %d", len(voices))
	}
	if voices[0].Lang != "en-US" || voices[0].Gender != "female" {
		t.Errorf("unexpected first voice %+v", voices[0])
	}
	if voices[1].Lang != "en-GB" {
		t.Errorf("expected british accent mapped to en-GB, got %s", voices[1].Lang)
	}

	v := SelectVoice(voices, "en-US", "female")
	if v == nil || v.ID != "rachel" {
		t.Errorf("expected rachel selected, got %+v", v)
	}
}

func TestElevenLabsEngine_VoiceLoadFailure_LeavesListEmpty(t *testing.T) {
	srv, _ := newElevenLabsServer(t, http.StatusOK)
	e := NewElevenLabsEngine(context.Background(), ElevenLabsConfig{APIKey: "wrong", BaseURL: srv.URL})
	waitVoices(t, e)

	if len(e.Voices()) != 0 {
		t.Errorf("expected no voices on auth failure, got %d", len(e.Voices()))
	}
}

func TestElevenLabsEngine_Speak_StreamsToPlayer(t *testing.T) {
	srv, lastBody := newElevenLabsServer(t, http.StatusOK)
	player := &recordingPlayer{}
	e := NewElevenLabsEngine(context.Background(), ElevenLabsConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Player:  player,
	})
	waitVoices(t, e)

	started, err := speakAndWait(t, e, Utterance{
		Text:  "Hello there.",
		Rate:  1.3,
		Voice: &Voice{ID: "rachel"},
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if !started {
		t.Error("expected OnStart on first audio bytes")
	}

	player.mu.Lock()
	if len(player.data) != 1024 || player.rate != 16000 {
		t.Errorf("unexpected playback: %d bytes at %d Hz", len(player.data), player.rate)
	}
	player.mu.Unlock()

	body := lastBody()
	if body["text"] != "Hello there." || body["model_id"] != "eleven_flash_v2_5" {
		t.Errorf("unexpected request body %v", body)
	}
	settings, _ := body["voice_settings"].(map[string]any)
	if settings["speed"] != 1.2 {
		t.Errorf("expected speed clamped to 1.2, got %v", settings["speed"])
	}
}

func TestElevenLabsEngine_Speak_HTTPError(t *testing.T) {
	srv, _ := newElevenLabsServer(t, http.StatusTooManyRequests)
	e := NewElevenLabsEngine(context.Background(), ElevenLabsConfig{APIKey: "test-key", BaseURL: srv.URL})
	waitVoices(t, e)

	_, err := speakAndWait(t, e, Utterance{Text: "Hello."})
	if err == nil || errors.Is(err, ErrInterrupted) {
		t.Errorf("expected HTTP failure, got %v", err)
	}
}

func TestElevenLabsEngine_Speak_RequiresAPIKey(t *testing.T) {
	srv, _ := newElevenLabsServer(t, http.StatusOK)
	e := NewElevenLabsEngine(context.Background(), ElevenLabsConfig{BaseURL: srv.URL})
	waitVoices(t, e)

	if err := e.Speak(Utterance{Text: "Hello."}, Callbacks{}); err == nil {
		t.Error("expected error without api key")
	}
}

func TestClampSpeed(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 1.0},
		{0.5, 0.7},
		{0.85, 0.85},
		{1.3, 1.2},
	}
	for _, tt := range tests {
		if got := clampSpeed(tt.in); got != tt.want {
			t.Errorf("clampSpeed(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
