package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	"github.com/playhive/backend/internal/models"
	"github.com/playhive/backend/internal/realtime"
	"github.com/redis/go-redis/v9"
)

// PointsChannel is the Redis pub/sub channel carrying points-changed
// notifications. Any service that mutates scores publishes here; the
// leaderboard publisher subscribes.
const PointsChannel = "points_events"

// Leaderboard reads ranked scores and records points transactions. It
// implements the realtime.LeaderboardSource collaborator contract.
type Leaderboard struct {
	db  *sqlx.DB
	rdb *redis.Client
}

// NewLeaderboard creates the leaderboard store. rdb may be nil; points
// awards then skip the change notification.
func NewLeaderboard(db *sqlx.DB, rdb *redis.Client) *Leaderboard {
	return &Leaderboard{db: db, rdb: rdb}
}

// GetTopN returns the top-scoring users in rank order.
func (s *Leaderboard) GetTopN(ctx context.Context, n int) ([]realtime.LeaderboardEntry, error) {
	var rows []models.LeaderboardRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT u.id AS user_id, u.display_name, COALESCE(SUM(pt.amount), 0) AS points
		FROM users u
		LEFT JOIN points_transactions pt ON pt.user_id = u.id
		WHERE u.is_active
		GROUP BY u.id, u.display_name
		ORDER BY points DESC, u.created_at
		LIMIT $1
	`, n)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}

	entries := make([]realtime.LeaderboardEntry, len(rows))
	for i, row := range rows {
		entries[i] = realtime.LeaderboardEntry{
			Rank:        i + 1,
			UserID:      row.UserID,
			DisplayName: row.DisplayName,
			Points:      row.Points,
		}
	}
	return entries, nil
}

// AddPoints records a points transaction and raises the points-changed
// notification so the leaderboard is republished promptly.
func (s *Leaderboard) AddPoints(ctx context.Context, userID string, amount int64, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO points_transactions (user_id, amount, reason, created_at)
		VALUES ($1, $2, $3, NOW())
	`, userID, amount, reason)
	if err != nil {
		return fmt.Errorf("insert points transaction: %w", err)
	}

	s.NotifyChanged(ctx, userID)
	return nil
}

// NotifyChanged publishes a points-changed event. Best effort: a failed
// publish only delays the next leaderboard push to the timer period.
func (s *Leaderboard) NotifyChanged(ctx context.Context, userID string) {
	if s.rdb == nil {
		return
	}
	payload, _ := json.Marshal(map[string]string{
		"type":    "points_changed",
		"user_id": userID,
	})
	if err := s.rdb.Publish(ctx, PointsChannel, payload).Err(); err != nil {
		log.Printf("[STORE] points event publish failed: %v", err)
	}
}
