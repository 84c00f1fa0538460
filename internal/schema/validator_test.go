package schema

import (
	"errors"
	"testing"

	"speaking-practice/internal/models"
)

func TestValidate_TurnEvent(t *testing.T) {
	v := New()

	valid := models.TurnEvent{
		EventType: models.EventTypeUserTurn,
		SessionID: "s1",
		TurnID:    "s1-turn-1",
		Speaker:   "user",
		Text:      "Hello",
		Timestamp: 1700000000000,
	}
	if err := v.Validate(valid); err != nil {
		t.Fatalf("expected valid event, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*models.TurnEvent)
		field  string
	}{
		{"missing session", func(e *models.TurnEvent) { e.SessionID = "" }, "sessionId"},
		{"bad speaker", func(e *models.TurnEvent) { e.Speaker = "narrator" }, "speaker"},
		{"bad event type", func(e *models.TurnEvent) { e.EventType = "turn" }, "eventType"},
		{"empty text", func(e *models.TurnEvent) { e.Text = "" }, "text"},
		{"no timestamp", func(e *models.TurnEvent) { e.Timestamp = 0 }, "timestamp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := valid
			tt.mutate(&ev)

			err := v.Validate(ev)
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) || len(verr.Fields) != 1 || verr.Fields[0].Field != tt.field {
				t.Errorf("expected failure on %s, got %v", tt.field, err)
			}
		})
	}
}

func TestValidate_Settings(t *testing.T) {
	v := New()

	tests := []struct {
		name     string
		settings models.Settings
		wantErr  bool
	}{
		{"defaults", models.DefaultSettings(), false},
		{"bounds low", models.Settings{Difficulty: 1, Speed: 1}, false},
		{"bounds high", models.Settings{Difficulty: 3, Speed: 5}, false},
		{"difficulty zero", models.Settings{Difficulty: 0, Speed: 2}, true},
		{"difficulty four", models.Settings{Difficulty: 4, Speed: 2}, true},
		{"speed six", models.Settings{Difficulty: 2, Speed: 6}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.settings)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%+v) error = %v, wantErr %v", tt.settings, err, tt.wantErr)
			}
		})
	}
}
