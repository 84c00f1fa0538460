// Package app builds the conversation and its clients from configuration
// and owns their lifetime.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"speaking-practice/internal/config"
	"speaking-practice/internal/events"
	apphttp "speaking-practice/internal/http"
	"speaking-practice/internal/observability/logging"
	"speaking-practice/internal/prefs"
	"speaking-practice/internal/service/capture"
	"speaking-practice/internal/service/conversation"
	"speaking-practice/internal/service/llm"
	"speaking-practice/internal/service/synthesis"
	"speaking-practice/internal/service/transcription"
	"speaking-practice/internal/service/transcription/google"
	"speaking-practice/internal/service/transcription/mock"
	"speaking-practice/internal/service/transcription/openai"
)

// Application holds everything one practice session needs. It is built
// once at start and torn down by Shutdown.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Configuration

	Prefs        *prefs.Store
	Recorder     *capture.Session
	Transcriber  *transcription.Client
	Generator    *llm.Generator
	Speaker      *synthesis.Synthesizer
	Publisher    *events.Publisher
	Conversation *conversation.Coordinator
	Hub          *apphttp.Hub

	ctx     context.Context
	cancel  context.CancelFunc
	closers []func() error
	ready   atomic.Bool
}

// New constructs the application from the provided configuration. A
// microphone that cannot be acquired is not an error: recording is then
// refused while typed messages keep working.
func New(ctx context.Context, cfg *config.Configuration) (*Application, error) {
	a := &Application{
		Cfg:    cfg,
		Logger: logging.WithComponent("application"),
	}
	a.ctx, a.cancel = context.WithCancel(context.Background())

	store, err := prefs.Open(cfg.Prefs.Path)
	if err != nil {
		a.cancel()
		return nil, fmt.Errorf("open preferences: %w", err)
	}
	a.Prefs = store

	mic, err := capture.NewMicrophone(capture.SourceConfig{
		Source:     cfg.Capture.Source,
		WAVPath:    cfg.Capture.WAVPath,
		SampleRate: cfg.Capture.SampleRateHz,
		FrameSize:  cfg.Capture.FrameSize,
	})
	if err != nil {
		a.cancel()
		return nil, fmt.Errorf("build microphone: %w", err)
	}
	a.Recorder = capture.NewSession(mic)
	if err := a.Recorder.Open(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("Continuing without microphone")
	}

	backend, err := a.newTranscriptionBackend(ctx)
	if err != nil {
		a.release()
		return nil, err
	}
	a.Transcriber = transcription.NewClient(backend, transcription.Config{
		MinBytes:    cfg.STT.MinBytes,
		MaxBytes:    cfg.STT.MaxBytes,
		MaxAttempts: cfg.STT.MaxAttempts,
		BackoffUnit: cfg.STT.BackoffUnit,
		Language:    cfg.STT.Language,
	})

	a.Generator = llm.New(llm.Config{
		APIKey:            cfg.LLM.APIKey,
		BaseURL:           cfg.LLM.BaseURL,
		Model:             cfg.LLM.Model,
		MaxTokens:         cfg.LLM.MaxTokens,
		Temperature:       cfg.LLM.Temperature,
		MaxAttempts:       cfg.LLM.MaxAttempts,
		BackoffUnit:       cfg.LLM.BackoffUnit,
		RequestsPerMinute: cfg.LLM.RequestsPerMinute,
		Timeout:           cfg.LLM.Timeout,
	})

	engine, err := a.newSpeechEngine()
	if err != nil {
		a.release()
		return nil, err
	}
	a.Speaker = synthesis.New(engine, synthesis.Config{
		Locale:            cfg.TTS.Locale,
		PreferredGender:   cfg.TTS.PreferredGender,
		ChunkThreshold:    cfg.TTS.ChunkThreshold,
		SettleDelay:       cfg.TTS.SettleDelay,
		RetryDelay:        cfg.TTS.RetryDelay,
		VoicePollInterval: cfg.TTS.VoicePollEvery,
		VoiceWaitTimeout:  cfg.TTS.VoiceWaitTimeout,
	})

	a.Publisher = events.New(&events.Config{
		Enabled:   cfg.Kafka.Enabled,
		Brokers:   cfg.Kafka.Brokers,
		TopicTurn: cfg.Kafka.TopicTurn,
		Principal: cfg.Kafka.Principal,
	})

	a.Conversation = conversation.New(conversation.Deps{
		Recorder:    a.Recorder,
		Transcriber: a.Transcriber,
		Generator:   a.Generator,
		Speaker:     a.Speaker,
		Publisher:   a.Publisher,
		Settings:    a.Prefs,
	})
	a.Transcriber.OnStatus(func(s transcription.Status) {
		a.Conversation.Notify(conversation.NoticeRetrying, s.Message)
	})

	a.Hub = apphttp.NewHub()

	a.Logger.Info().
		Str("capture", cfg.Capture.Source).
		Str("stt", cfg.STT.Provider).
		Str("tts", cfg.TTS.Provider).
		Bool("kafka", a.Publisher.Enabled()).
		Msg("Speaking practice application created")
	return a, nil
}

func (a *Application) newTranscriptionBackend(ctx context.Context) (transcription.Backend, error) {
	cfg := a.Cfg
	switch cfg.STT.Provider {
	case "", "mock":
		var texts []string
		if cfg.STT.MockText != "" {
			texts = append(texts, cfg.STT.MockText)
		}
		return mock.New(300*time.Millisecond, texts...), nil

	case "openai":
		return openai.New(openai.Config{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.STT.Model,
		}), nil

	case "google":
		gcfg := google.DefaultConfig()
		gcfg.LanguageCode = cfg.STT.LanguageCode
		b, err := google.New(ctx, gcfg)
		if err != nil {
			return nil, fmt.Errorf("create google speech client: %w", err)
		}
		a.closers = append(a.closers, b.Close)
		return b, nil

	default:
		return nil, fmt.Errorf("unknown transcription provider %q", cfg.STT.Provider)
	}
}

func (a *Application) newSpeechEngine() (synthesis.Engine, error) {
	cfg := a.Cfg.TTS
	switch cfg.Provider {
	case "", "console":
		return synthesis.NewConsoleEngine(os.Stdout), nil

	case "elevenlabs":
		player, err := synthesis.NewPlayer(cfg.Player)
		if err != nil {
			return nil, fmt.Errorf("build audio player: %w", err)
		}
		return synthesis.NewElevenLabsEngine(a.ctx, synthesis.ElevenLabsConfig{
			APIKey:  cfg.ElevenLabsKey,
			BaseURL: cfg.ElevenLabsURL,
			Model:   cfg.ElevenLabsModel,
			Player:  player,
		}), nil

	default:
		return nil, fmt.Errorf("unknown speech provider %q", cfg.Provider)
	}
}

// Start begins streaming conversation events to WebSocket clients and
// marks the application ready.
func (a *Application) Start() error {
	a.StartupTime = time.Now().UTC()

	go a.Hub.Run(a.ctx)
	events, _ := a.Conversation.Subscribe()
	go a.Hub.Forward(a.ctx, events)

	a.ready.Store(true)
	a.Logger.Info().
		Time("startupTime", a.StartupTime).
		Str("sessionId", a.Conversation.SessionID()).
		Msg("Speaking practice application started")
	return nil
}

// Ready reports whether the conversation accepts commands.
func (a *Application) Ready() bool {
	return a.ready.Load()
}

// Handler returns the control API.
func (a *Application) Handler() http.Handler {
	return apphttp.NewRouter(a.Conversation, a.Prefs, a.Hub, a.Ready)
}

// Shutdown closes the conversation, releasing the microphone and stopping
// speech, then the clients it used.
func (a *Application) Shutdown() {
	a.ready.Store(false)

	if a.Conversation != nil {
		if err := a.Conversation.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Conversation close error")
		}
	}
	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Publisher close error")
		}
	}
	a.release()
	a.Logger.Info().Msg("Speaking practice application shut down")
}

// release closes what New acquired. The recorder is normally closed by the
// conversation already; closing it twice is harmless.
func (a *Application) release() {
	if a.Recorder != nil {
		_ = a.Recorder.Close()
	}
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.Logger.Warn().Err(err).Msg("Client close error")
		}
	}
	a.closers = nil
	a.cancel()
}
