package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"math/big"

	"github.com/jmoiron/sqlx"
	"github.com/playhive/backend/internal/realtime"
)

// Matches persists match records in PostgreSQL. It implements the
// realtime.MatchStore collaborator contract.
type Matches struct {
	db *sqlx.DB
}

// NewMatches creates the match store.
func NewMatches(db *sqlx.DB) *Matches {
	return &Matches{db: db}
}

// CreateMatch inserts a pending match and returns its ID.
func (s *Matches) CreateMatch(ctx context.Context, gameID, player1ID, player2ID string) (string, error) {
	matchID := "MATCH_" + generateID(10)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO matches (id, game_id, player1_id, player2_id, status, created_at)
		VALUES ($1, $2, $3, $4, 'pending', NOW())
	`, matchID, gameID, player1ID, player2ID)
	if err != nil {
		return "", fmt.Errorf("insert match: %w", err)
	}
	return matchID, nil
}

// GetActiveMatch returns the user's pending or active match, or nil when
// there is none.
func (s *Matches) GetActiveMatch(ctx context.Context, userID string) (*realtime.Match, error) {
	var m realtime.Match
	err := s.db.GetContext(ctx, &m, `
		SELECT id, game_id, player1_id, player2_id, status, created_at
		FROM matches
		WHERE (player1_id = $1 OR player2_id = $1)
		  AND status IN ('pending', 'active')
		ORDER BY created_at DESC
		LIMIT 1
	`, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query active match: %w", err)
	}
	return &m, nil
}

// CompleteMatch marks a match completed, recording the winner when given.
func (s *Matches) CompleteMatch(ctx context.Context, matchID, winnerID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE matches
		SET status = 'completed', winner_id = NULLIF($2, ''), completed_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'active')
	`, matchID, winnerID)
	if err != nil {
		return fmt.Errorf("complete match: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return realtime.ErrMatchNotFound
	}
	return nil
}

const idCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// generateID generates a random alphanumeric ID
func generateID(length int) string {
	result := make([]byte, length)
	for i := range result {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(idCharset))))
		result[i] = idCharset[n.Int64()]
	}
	return string(result)
}
