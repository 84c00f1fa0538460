package models

import "time"

// Default conversation settings.
const (
	DefaultDifficulty = 2
	DefaultSpeed      = 2
)

// Settings are the user's conversation preferences.
type Settings struct {
	Difficulty   int    `json:"difficulty" validate:"min=1,max=3"`
	Speed        int    `json:"speed" validate:"min=1,max=5"`
	CustomPrompt string `json:"customPrompt,omitempty" validate:"max=4000"`
}

// DefaultSettings returns intermediate difficulty at a slightly slow speed.
func DefaultSettings() Settings {
	return Settings{Difficulty: DefaultDifficulty, Speed: DefaultSpeed}
}

// TestResult is the stored outcome of the placement test.
type TestResult struct {
	Score                 int       `json:"score"`
	RecommendedDifficulty int       `json:"recommendedDifficulty"`
	RecommendedSpeed      int       `json:"recommendedSpeed"`
	CompletedAt           time.Time `json:"completedAt"`
}

// RecommendedSettings maps a placement score out of 10 to difficulty and speed.
func RecommendedSettings(score int) (difficulty, speed int) {
	switch {
	case score <= 4:
		return 1, 1
	case score <= 7:
		return 2, 2
	default:
		return 3, 3
	}
}
