package realtime

import (
	"context"
	"errors"
	"time"
)

// Sender is the outbound half of a live transport connection. The ws layer
// implements it with a buffered channel write; tests implement it in memory.
type Sender interface {
	Send(message interface{}) error
}

// Identity is a resolved user, or the anonymous state when UserID is empty.
type Identity struct {
	UserID      string
	DisplayName string
}

// Anonymous reports whether the identity carries no user.
func (id Identity) Anonymous() bool {
	return id.UserID == ""
}

// Match is a confirmed pairing of two users for a game session.
type Match struct {
	ID        string    `db:"id" json:"match_id"`
	GameID    string    `db:"game_id" json:"game_id"`
	Player1ID string    `db:"player1_id" json:"player1_id"`
	Player2ID string    `db:"player2_id" json:"player2_id"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Match statuses.
const (
	MatchPending   = "pending"
	MatchActive    = "active"
	MatchCompleted = "completed"
	MatchCancelled = "cancelled"
)

// Opponent returns the other player of the match.
func (m *Match) Opponent(userID string) string {
	if m.Player1ID == userID {
		return m.Player2ID
	}
	return m.Player1ID
}

// LeaderboardEntry is one ranked row of a leaderboard snapshot.
type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Points      int64  `json:"points"`
}

// MatchStore is the external match persistence collaborator.
type MatchStore interface {
	CreateMatch(ctx context.Context, gameID, player1ID, player2ID string) (string, error)
	GetActiveMatch(ctx context.Context, userID string) (*Match, error)
}

// LeaderboardSource is the external leaderboard data collaborator.
type LeaderboardSource interface {
	GetTopN(ctx context.Context, n int) ([]LeaderboardEntry, error)
}

var (
	// ErrNotAuthorized is returned when a sender broadcasts to a room it is
	// not a member of.
	ErrNotAuthorized = errors.New("not a member of room")

	// ErrIdentityRequired is returned when an anonymous connection attempts
	// an operation that needs a user.
	ErrIdentityRequired = errors.New("identity required")

	// ErrRoomNotFound is returned when a lookup targets a room that does
	// not exist.
	ErrRoomNotFound = errors.New("room not found")

	// ErrMatchNotFound is returned when a match lookup finds nothing.
	ErrMatchNotFound = errors.New("match not found")
)
