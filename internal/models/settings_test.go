package models

import "testing"

func TestRecommendedSettings(t *testing.T) {
	tests := []struct {
		score      int
		difficulty int
		speed      int
	}{
		{0, 1, 1},
		{4, 1, 1},
		{5, 2, 2},
		{7, 2, 2},
		{8, 3, 3},
		{10, 3, 3},
	}
	for _, tt := range tests {
		d, s := RecommendedSettings(tt.score)
		if d != tt.difficulty || s != tt.speed {
			t.Errorf("RecommendedSettings(%d) = (%d, %d), want (%d, %d)", tt.score, d, s, tt.difficulty, tt.speed)
		}
	}
}

func TestEventTypeFor(t *testing.T) {
	if EventTypeFor("bot") != EventTypeBotTurn {
		t.Error("expected bot event type")
	}
	if EventTypeFor("user") != EventTypeUserTurn {
		t.Error("expected user event type")
	}
}
