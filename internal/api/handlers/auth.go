package handlers

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/playhive/backend/internal/auth"
	"github.com/playhive/backend/internal/config"
	"github.com/playhive/backend/internal/store"
)

// Register creates a user account and issues a token.
func Register(users *store.Users, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Username    string `json:"username"`
			DisplayName string `json:"display_name"`
			Email       string `json:"email"`
			Password    string `json:"password"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
			return
		}

		username := strings.TrimSpace(req.Username)
		if username == "" || len(req.Password) < 8 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "username and a password of at least 8 characters required"})
			return
		}

		ctx := c.Request.Context()
		if existing, err := users.GetByUsername(ctx, username); err != nil {
			log.Printf("[AUTH] user lookup failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		} else if existing != nil {
			c.JSON(http.StatusConflict, gin.H{"error": "username taken"})
			return
		}

		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			log.Printf("[AUTH] hash failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		userID, err := users.Create(ctx, username, strings.TrimSpace(req.DisplayName), strings.TrimSpace(req.Email), hash)
		if err != nil {
			log.Printf("[AUTH] create user failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		displayName := req.DisplayName
		if displayName == "" {
			displayName = username
		}
		token, err := auth.IssueToken(cfg.JWTSecret, userID, displayName)
		if err != nil {
			log.Printf("[AUTH] sign token failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"token":   token,
			"user_id": userID,
		})
	}
}

// Login checks credentials and issues a token.
func Login(users *store.Users, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
			return
		}

		ctx := c.Request.Context()
		user, err := users.GetByUsername(ctx, strings.TrimSpace(req.Username))
		if err != nil {
			log.Printf("[AUTH] user lookup failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if user == nil || !user.IsActive || !auth.CheckPassword(user.PasswordHash, req.Password) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}

		token, err := auth.IssueToken(cfg.JWTSecret, user.ID, user.DisplayName)
		if err != nil {
			log.Printf("[AUTH] sign token failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		users.TouchLastActive(ctx, user.ID)

		c.JSON(http.StatusOK, gin.H{
			"token":   token,
			"user_id": user.ID,
		})
	}
}
