package storage

import (
	"context"

	"github.com/pixelclass/render-judge/internal/scoring"
)

// GameState is the persisted game-wide progress snapshot.
type GameState struct {
	CurrentLevel string  `json:"currentLevel"`
	AllPoints    float64 `json:"allPoints"`
	AllMaxPoints float64 `json:"allMaxPoints"`
}

// Repository defines the interface for progress persistence
type Repository interface {
	// Level scores
	SaveLevelScore(ctx context.Context, score scoring.LevelScore) error
	GetLevelScores(ctx context.Context) ([]scoring.LevelScore, error)
	DeleteLevelScore(ctx context.Context, levelName string) error

	// Game state
	SaveGameState(ctx context.Context, state GameState) error
	LoadGameState(ctx context.Context) (*GameState, error)

	// Health
	Ping(ctx context.Context) error
	Close() error
}
