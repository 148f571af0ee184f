package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/playhive/backend/internal/realtime"
	"golang.org/x/crypto/bcrypt"
)

// TokenTTL is how long an issued token stays valid.
const TokenTTL = 24 * time.Hour

// IssueToken signs a JWT for a user.
func IssueToken(secret, userID, displayName string) (string, error) {
	claims := jwt.MapClaims{
		"sub":          userID,
		"display_name": displayName,
		"exp":          time.Now().Add(TokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// Resolve turns a presented token into an identity. Failure is non-fatal:
// a missing, malformed, or expired token yields the anonymous identity, and
// the caller decides whether the operation permits it.
func Resolve(secret, tokenString string) realtime.Identity {
	if tokenString == "" {
		return realtime.Identity{}
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return realtime.Identity{}
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return realtime.Identity{}
	}

	userID, _ := claims["sub"].(string)
	displayName, _ := claims["display_name"].(string)
	if displayName == "" {
		displayName = "Anonymous"
	}
	return realtime.Identity{UserID: userID, DisplayName: displayName}
}

// HashPassword hashes a password for storage.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// CheckPassword verifies a password against its stored hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
