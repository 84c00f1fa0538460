// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Configuration is the full runtime configuration of the practice daemon.
type Configuration struct {
	Service       ServiceConfig
	Capture       CaptureConfig
	STT           STTConfig
	LLM           LLMConfig
	TTS           TTSConfig
	Kafka         KafkaConfig
	Prefs         PrefsConfig
	Observability ObservabilityConfig
}

// ServiceConfig holds identity and listener settings.
type ServiceConfig struct {
	Name      string
	Principal string
	HTTPAddr  string
	Env       string
}

// CaptureConfig selects and tunes the microphone source.
type CaptureConfig struct {
	Source       string // wav, portaudio
	WAVPath      string // empty replays the bundled practice recording
	SampleRateHz int
	FrameSize    int
}

// STTConfig configures the transcription client and its backend.
type STTConfig struct {
	Provider     string // mock, openai, google
	Model        string
	Language     string
	LanguageCode string // BCP-47 code for providers that need a region
	MinBytes     int
	MaxBytes     int
	MaxAttempts  int
	BackoffUnit  time.Duration
	MockText     string
}

// LLMConfig configures the conversation-partner model.
type LLMConfig struct {
	APIKey            string
	BaseURL           string
	Model             string
	MaxTokens         int
	Temperature       float32
	MaxAttempts       int
	BackoffUnit       time.Duration
	RequestsPerMinute int
	Timeout           time.Duration
}

// TTSConfig configures speech synthesis.
type TTSConfig struct {
	Provider         string // console, elevenlabs
	ElevenLabsKey    string
	ElevenLabsURL    string
	ElevenLabsModel  string
	Locale           string
	PreferredGender  string
	ChunkThreshold   int
	SettleDelay      time.Duration
	RetryDelay       time.Duration
	VoicePollEvery   time.Duration
	VoiceWaitTimeout time.Duration
	Player           string // discard, portaudio
}

// KafkaConfig configures turn event publishing.
type KafkaConfig struct {
	Enabled   bool
	Brokers   []string
	TopicTurn string
	Principal string
}

// PrefsConfig locates the preferences file.
type PrefsConfig struct {
	Path string
}

// ObservabilityConfig configures logging and the metrics server.
type ObservabilityConfig struct {
	LogLevel    string
	LogFormat   string
	MetricsAddr string
}

// Load reads configuration from the environment, after applying a .env file
// from the working directory when one exists.
func Load() *Configuration {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("Failed to load .env file")
	}

	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-speaking-practice")

	cfg := &Configuration{
		Service: ServiceConfig{
			Name:      envOrDefault("SERVICE_NAME", "speaking-practice"),
			Principal: principal,
			HTTPAddr:  envOrDefault("HTTP_ADDR", ":8080"),
			Env:       envOrDefault("ENV", "dev"),
		},
		Capture: CaptureConfig{
			Source:       envOrDefault("CAPTURE_SOURCE", "wav"),
			WAVPath:      os.Getenv("CAPTURE_WAV_PATH"),
			SampleRateHz: envOrDefaultInt("CAPTURE_SAMPLE_RATE_HZ", 16000),
			FrameSize:    envOrDefaultInt("CAPTURE_FRAME_SIZE", 1600),
		},
		STT: STTConfig{
			Provider:     envOrDefault("STT_PROVIDER", "mock"),
			Model:        envOrDefault("STT_MODEL", "whisper-1"),
			Language:     envOrDefault("STT_LANGUAGE", "en"),
			LanguageCode: envOrDefault("STT_LANGUAGE_CODE", "en-US"),
			MinBytes:     envOrDefaultInt("STT_MIN_BYTES", 2000),
			MaxBytes:     envOrDefaultInt("STT_MAX_BYTES", 25*1024*1024),
			MaxAttempts:  envOrDefaultInt("STT_MAX_ATTEMPTS", 3),
			BackoffUnit:  envOrDefaultDuration("STT_BACKOFF_UNIT", time.Second),
			MockText:     os.Getenv("STT_MOCK_TEXT"),
		},
		LLM: LLMConfig{
			APIKey:            os.Getenv("OPENAI_API_KEY"),
			BaseURL:           os.Getenv("OPENAI_BASE_URL"),
			Model:             envOrDefault("LLM_MODEL", "gpt-3.5-turbo"),
			MaxTokens:         envOrDefaultInt("LLM_MAX_TOKENS", 150),
			Temperature:       float32(envOrDefaultFloat("LLM_TEMPERATURE", 0.7)),
			MaxAttempts:       envOrDefaultInt("LLM_MAX_ATTEMPTS", 3),
			BackoffUnit:       envOrDefaultDuration("LLM_BACKOFF_UNIT", 3*time.Second),
			RequestsPerMinute: envOrDefaultInt("LLM_REQUESTS_PER_MINUTE", 20),
			Timeout:           envOrDefaultDuration("LLM_TIMEOUT", 30*time.Second),
		},
		TTS: TTSConfig{
			Provider:         envOrDefault("TTS_PROVIDER", "console"),
			ElevenLabsKey:    os.Getenv("ELEVENLABS_API_KEY"),
			ElevenLabsURL:    envOrDefault("ELEVENLABS_BASE_URL", "https://api.elevenlabs.io"),
			ElevenLabsModel:  envOrDefault("ELEVENLABS_MODEL", "eleven_flash_v2_5"),
			Locale:           envOrDefault("TTS_LOCALE", "en-US"),
			PreferredGender:  envOrDefault("TTS_GENDER", "female"),
			ChunkThreshold:   envOrDefaultInt("TTS_CHUNK_THRESHOLD", 200),
			SettleDelay:      envOrDefaultDuration("TTS_SETTLE_DELAY", 150*time.Millisecond),
			RetryDelay:       envOrDefaultDuration("TTS_RETRY_DELAY", 300*time.Millisecond),
			VoicePollEvery:   envOrDefaultDuration("TTS_VOICE_POLL_INTERVAL", 500*time.Millisecond),
			VoiceWaitTimeout: envOrDefaultDuration("TTS_VOICE_WAIT_TIMEOUT", 5*time.Second),
			Player:           envOrDefault("TTS_PLAYER", "discard"),
		},
		Kafka: KafkaConfig{
			Enabled:   envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:   splitList(os.Getenv("KAFKA_BROKERS")),
			TopicTurn: envOrDefault("KAFKA_TOPIC_TURNS", "conversation.turns"),
			Principal: envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Prefs: PrefsConfig{
			Path: envOrDefault("PREFS_PATH", "prefs.json"),
		},
		Observability: ObservabilityConfig{
			LogLevel:    envOrDefault("LOG_LEVEL", "info"),
			LogFormat:   envOrDefault("LOG_FORMAT", "json"),
			MetricsAddr: envOrDefault("METRICS_ADDR", ":9090"),
		},
	}

	return cfg
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("Invalid integer, using default")
		return def
	}
	return n
}

func envOrDefaultFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("Invalid float, using default")
		return def
	}
	return f
}

func envOrDefaultBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("Invalid duration, using default")
		return def
	}
	return d
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
