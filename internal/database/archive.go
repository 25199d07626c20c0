// internal/database/archive.go
package database

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ddebettencourt/kwizniac-infinite/internal/models"
)

// Archive records finished matches. Live session state never touches the
// database; only final standings are written, once per game. A nil *Archive
// is valid and turns RecordMatch into a no-op, so the server runs without
// Postgres configured.
type Archive struct {
	pool *pgxpool.Pool
}

// Connect initializes the archive from DATABASE_URL. Returns a nil archive
// when the variable is unset.
func Connect(ctx context.Context) (*Archive, error) {
	connStr := os.Getenv("DATABASE_URL")
	if connStr == "" {
		return nil, nil
	}

	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to parse pgx config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	a := &Archive{pool: pool}
	if err := a.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return a, nil
}

func (a *Archive) ensureSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS matches (
			id UUID PRIMARY KEY,
			room_id TEXT NOT NULL,
			rounds_played INT NOT NULL,
			finished_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS match_results (
			match_id UUID NOT NULL REFERENCES matches(id),
			player_id UUID NOT NULL,
			nickname TEXT NOT NULL,
			score INT NOT NULL,
			placement INT NOT NULL,
			PRIMARY KEY (match_id, player_id)
		);
	`
	if _, err := a.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure archive schema: %w", err)
	}
	return nil
}

// RecordMatch persists a finished game's final standings, ordered by
// placement. Standings are expected highest score first.
func (a *Archive) RecordMatch(ctx context.Context, roomID string, roundsPlayed int, standings []models.Player) error {
	if a == nil {
		return nil
	}

	matchID := uuid.New()
	err := pgx.BeginTxFunc(ctx, a.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		insMatch := `
			INSERT INTO matches (id, room_id, rounds_played)
			VALUES ($1, $2, $3)
		`
		if _, e := tx.Exec(ctx, insMatch, matchID, roomID, roundsPlayed); e != nil {
			return e
		}
		insResult := `
			INSERT INTO match_results (match_id, player_id, nickname, score, placement)
			VALUES ($1, $2, $3, $4, $5)
		`
		for i, p := range standings {
			if _, e := tx.Exec(ctx, insResult, matchID, p.ID, p.Nickname, p.Score, i+1); e != nil {
				return e
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("tx insert match results: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (a *Archive) Close() {
	if a == nil {
		return
	}
	a.pool.Close()
}
