package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/playhive/backend/internal/middleware"
	"github.com/playhive/backend/internal/realtime"
	"github.com/playhive/backend/internal/store"
)

// QueueStatus reports the caller's matchmaking state. The shape matches
// the websocket queue_status event so clients can poll either surface.
func QueueStatus(mm *realtime.Matchmaker) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := middleware.IdentityFrom(c)
		res, err := mm.Status(c.Request.Context(), identity.UserID)
		if err != nil {
			log.Printf("[MATCHMAKER] status failed for user %s: %v", identity.UserID, err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "status temporarily unavailable"})
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// CancelQueue cancels the caller's searching entry. Idempotent.
func CancelQueue(mm *realtime.Matchmaker) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := middleware.IdentityFrom(c)
		mm.Cancel(identity.UserID)
		c.JSON(http.StatusOK, gin.H{"cancelled": true})
	}
}

// CompleteMatch finishes a match the caller played in, awarding points to
// the winner. Completion frees both players to queue again and raises the
// points-changed notification through the leaderboard store.
func CompleteMatch(mm *realtime.Matchmaker, matches *store.Matches, leaderboard *store.Leaderboard) gin.HandlerFunc {
	return func(c *gin.Context) {
		matchID := c.Param("id")
		identity := middleware.IdentityFrom(c)

		var req struct {
			WinnerID string `json:"winner_id"`
			Points   int64  `json:"points"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
			return
		}
		if req.Points <= 0 {
			req.Points = 10
		}

		ctx := c.Request.Context()

		match, err := mm.Lookup(matchID)
		if errors.Is(err, realtime.ErrMatchNotFound) {
			// The match may only exist in the database, e.g. after a restart
			// before either player polled their status. Status hydrates the
			// caller's persisted match into the matchmaker.
			if st, serr := mm.Status(ctx, identity.UserID); serr == nil && st.MatchID == matchID {
				match, err = mm.Lookup(matchID)
			}
		}
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "match not found"})
			return
		}
		if match.Player1ID != identity.UserID && match.Player2ID != identity.UserID {
			c.JSON(http.StatusForbidden, gin.H{"error": "not a participant"})
			return
		}
		if match, err = mm.Complete(matchID); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "match not found"})
			return
		}
		if err := matches.CompleteMatch(ctx, matchID, req.WinnerID); err != nil {
			log.Printf("[MATCHMAKER] persist completion failed for match %s: %v", matchID, err)
		}

		if req.WinnerID != "" {
			if err := leaderboard.AddPoints(ctx, req.WinnerID, req.Points, "match:"+matchID); err != nil {
				log.Printf("[MATCHMAKER] award points failed for match %s: %v", matchID, err)
			}
		}

		c.JSON(http.StatusOK, gin.H{"match_id": matchID, "status": match.Status})
	}
}
