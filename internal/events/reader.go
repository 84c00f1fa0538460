package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"speaking-practice/internal/models"
)

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type offsetSetter interface {
	SetOffset(offset int64) error
	SetOffsetAt(ctx context.Context, t time.Time) error
}

// ReaderConfig configures a turn topic reader.
type ReaderConfig struct {
	Brokers []string
	Topic   string
	// Since replays events newer than now minus Since. Zero starts at the
	// newest offset.
	Since time.Duration
}

// Reader consumes turn events from partition 0 of the turn topic without
// a consumer group.
type Reader struct {
	r     messageReader
	topic string
	since time.Duration
	retry time.Duration
}

// NewReader creates a partition reader on the turn topic.
func NewReader(cfg ReaderConfig) *Reader {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   cfg.Brokers,
		Topic:     cfg.Topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	return &Reader{r: r, topic: cfg.Topic, since: cfg.Since, retry: time.Second}
}

// Run reads until ctx is cancelled and hands every decodable event to
// handle. Read errors are logged and retried.
func (r *Reader) Run(ctx context.Context, handle func(models.TurnEvent)) error {
	if s, ok := r.r.(offsetSetter); ok {
		var err error
		if r.since > 0 {
			err = s.SetOffsetAt(ctx, time.Now().Add(-r.since))
		} else {
			err = s.SetOffset(kafka.LastOffset)
		}
		if err != nil {
			log.Warn().Err(err).Str("topic", r.topic).Msg("Failed to position reader")
		}
	}

	log.Info().Str("topic", r.topic).Dur("since", r.since).Msg("Consuming turn events")

	for {
		msg, err := r.r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			log.Error().Err(err).Str("topic", r.topic).Msg("Kafka read error")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(r.retry):
			}
			continue
		}

		ev, err := decodeTurn(msg)
		if err != nil {
			log.Warn().Err(err).Int64("offset", msg.Offset).Msg("Skipping undecodable turn event")
			continue
		}
		handle(ev)
	}
}

// Close closes the underlying reader.
func (r *Reader) Close() error {
	return r.r.Close()
}

func decodeTurn(msg kafka.Message) (models.TurnEvent, error) {
	var ev models.TurnEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		return ev, err
	}
	if ev.EventType == "" {
		for _, h := range msg.Headers {
			if h.Key == "eventType" {
				ev.EventType = string(h.Value)
			}
		}
	}
	if ev.SessionID == "" {
		ev.SessionID = string(msg.Key)
	}
	return ev, nil
}
