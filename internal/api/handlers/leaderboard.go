package handlers

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/playhive/backend/internal/middleware"
	"github.com/playhive/backend/internal/store"
)

// GetLeaderboard returns the current top-N snapshot over REST, sharing the
// data source with the websocket publisher.
func GetLeaderboard(leaderboard *store.Leaderboard, defaultTopN int) gin.HandlerFunc {
	return func(c *gin.Context) {
		n := defaultTopN
		if raw := c.Query("limit"); raw != "" {
			if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= 200 {
				n = v
			}
		}

		entries, err := leaderboard.GetTopN(c.Request.Context(), n)
		if err != nil {
			log.Printf("[LEADERBOARD] query failed: %v", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "leaderboard temporarily unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"leaderboard": entries})
	}
}

// AwardPoints credits points to the caller, e.g. for achievements claimed
// through the REST surface. The store raises the points-changed event.
func AwardPoints(leaderboard *store.Leaderboard) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := middleware.IdentityFrom(c)

		var req struct {
			Amount int64  `json:"amount"`
			Reason string `json:"reason"`
		}
		if err := c.BindJSON(&req); err != nil || req.Amount == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "non-zero amount required"})
			return
		}
		if req.Reason == "" {
			req.Reason = "manual"
		}

		if err := leaderboard.AddPoints(c.Request.Context(), identity.UserID, req.Amount, req.Reason); err != nil {
			log.Printf("[LEADERBOARD] add points failed for user %s: %v", identity.UserID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"awarded": req.Amount})
	}
}
