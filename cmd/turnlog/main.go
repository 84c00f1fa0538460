// Turnlog tails conversation turns from the turn topic and prints them.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"speaking-practice/internal/events"
	"speaking-practice/internal/models"
	"speaking-practice/internal/observability/logging"
)

func main() {
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "conversation.turns", "Turn topic")
	since := flag.Duration("since", time.Hour, "Replay turns newer than this (0 = only new turns)")
	flag.Parse()

	logging.Init(logging.Config{Level: "info", Format: "console", TimeFormat: time.RFC3339})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	reader := events.NewReader(events.ReaderConfig{
		Brokers: strings.Split(*brokers, ","),
		Topic:   *topic,
		Since:   *since,
	})
	defer reader.Close()

	if err := reader.Run(ctx, printTurn); err != nil {
		log.Fatal().Err(err).Msg("Turn reader failed")
	}
}

func printTurn(ev models.TurnEvent) {
	ts := time.UnixMilli(ev.Timestamp).Format("15:04:05")
	tag := ""
	if ev.Scripted {
		tag = " (scripted)"
	}
	fmt.Printf("%s  %-8s %-4s%s  %s\n", ts, truncate(ev.SessionID, 8), ev.Speaker, tag, ev.Text)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
