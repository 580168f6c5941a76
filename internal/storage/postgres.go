package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pixelclass/render-judge/internal/scoring"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int32
	MaxIdleConns int32
	MaxLifetime  time.Duration
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, cfg PostgresConfig) (*PostgresRepository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	} else {
		poolConfig.MaxConns = 25
	}

	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	} else {
		poolConfig.MinConns = 5
	}

	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxLifetime
	} else {
		poolConfig.MaxConnLifetime = 30 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// SaveLevelScore upserts one level's score state
func (r *PostgresRepository) SaveLevelScore(ctx context.Context, score scoring.LevelScore) error {
	query := `
		INSERT INTO level_scores (level_name, accuracy, points, best_time_ms, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (level_name) DO UPDATE SET
			accuracy = EXCLUDED.accuracy,
			points = EXCLUDED.points,
			best_time_ms = COALESCE(EXCLUDED.best_time_ms, level_scores.best_time_ms),
			updated_at = NOW()
	`

	_, err := r.pool.Exec(ctx, query, score.LevelName, score.Accuracy, score.Points, score.BestTimeMs)
	if err != nil {
		return fmt.Errorf("failed to save level score: %w", err)
	}

	return nil
}

// GetLevelScores returns all persisted level scores
func (r *PostgresRepository) GetLevelScores(ctx context.Context) ([]scoring.LevelScore, error) {
	query := `
		SELECT level_name, accuracy, points, best_time_ms
		FROM level_scores
		ORDER BY level_name
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query level scores: %w", err)
	}
	defer rows.Close()

	var scores []scoring.LevelScore
	for rows.Next() {
		var s scoring.LevelScore
		if err := rows.Scan(&s.LevelName, &s.Accuracy, &s.Points, &s.BestTimeMs); err != nil {
			return nil, fmt.Errorf("failed to scan level score: %w", err)
		}
		scores = append(scores, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read level scores: %w", err)
	}

	return scores, nil
}

// DeleteLevelScore removes one level's persisted score
func (r *PostgresRepository) DeleteLevelScore(ctx context.Context, levelName string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM level_scores WHERE level_name = $1`, levelName)
	if err != nil {
		return fmt.Errorf("failed to delete level score: %w", err)
	}
	return nil
}

// SaveGameState upserts the single game state row
func (r *PostgresRepository) SaveGameState(ctx context.Context, state GameState) error {
	query := `
		INSERT INTO game_state (id, current_level, all_points, all_max_points, updated_at)
		VALUES (1, $1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE SET
			current_level = EXCLUDED.current_level,
			all_points = EXCLUDED.all_points,
			all_max_points = EXCLUDED.all_max_points,
			updated_at = NOW()
	`

	_, err := r.pool.Exec(ctx, query, state.CurrentLevel, state.AllPoints, state.AllMaxPoints)
	if err != nil {
		return fmt.Errorf("failed to save game state: %w", err)
	}

	return nil
}

// LoadGameState returns the persisted game state, or nil if none exists
func (r *PostgresRepository) LoadGameState(ctx context.Context) (*GameState, error) {
	query := `
		SELECT current_level, all_points, all_max_points
		FROM game_state
		WHERE id = 1
	`

	var state GameState
	err := r.pool.QueryRow(ctx, query).Scan(&state.CurrentLevel, &state.AllPoints, &state.AllMaxPoints)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load game state: %w", err)
	}

	return &state, nil
}
