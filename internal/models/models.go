package models

import (
	"database/sql"
	"time"
)

// User represents a registered account
type User struct {
	ID           string       `db:"id" json:"id"`
	Username     string       `db:"username" json:"username"`
	DisplayName  string       `db:"display_name" json:"display_name"`
	Email        string       `db:"email" json:"email"`
	PasswordHash string       `db:"password_hash" json:"-"`
	IsActive     bool         `db:"is_active" json:"is_active"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	LastActive   sql.NullTime `db:"last_active" json:"last_active,omitempty"`
}

// MatchRow is the persisted form of a match
type MatchRow struct {
	ID          string         `db:"id" json:"id"`
	GameID      string         `db:"game_id" json:"game_id"`
	Player1ID   string         `db:"player1_id" json:"player1_id"`
	Player2ID   string         `db:"player2_id" json:"player2_id"`
	Status      string         `db:"status" json:"status"`
	WinnerID    sql.NullString `db:"winner_id" json:"winner_id,omitempty"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	CompletedAt sql.NullTime   `db:"completed_at" json:"completed_at,omitempty"`
}

// PointsTransaction records a single points credit or debit
type PointsTransaction struct {
	ID        int       `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Amount    int64     `db:"amount" json:"amount"`
	Reason    string    `db:"reason" json:"reason"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// LeaderboardRow is one user's ranked score, as read from the database
type LeaderboardRow struct {
	UserID      string `db:"user_id" json:"user_id"`
	DisplayName string `db:"display_name" json:"display_name"`
	Points      int64  `db:"points" json:"points"`
}
