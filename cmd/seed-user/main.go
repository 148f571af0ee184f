package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/playhive/backend/internal/auth"
	"github.com/playhive/backend/internal/config"
	"github.com/playhive/backend/internal/database"
	"github.com/playhive/backend/internal/store"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Initialize configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	username := os.Getenv("SEED_USERNAME")
	if username == "" {
		username = "demo"
		log.Printf("Using default username: %s", username)
	}

	password := os.Getenv("SEED_PASSWORD")
	if password == "" {
		password = "change-me-in-production"
		log.Printf("WARNING: Using default password. Set SEED_PASSWORD env var in production!")
	}

	ctx := context.Background()
	users := store.NewUsers(db)

	if existing, err := users.GetByUsername(ctx, username); err != nil {
		log.Fatalf("Failed to look up user: %v", err)
	} else if existing != nil {
		log.Printf("User %s already exists (id=%s), nothing to do", username, existing.ID)
		return
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}

	userID, err := users.Create(ctx, username, "", "", hash)
	if err != nil {
		log.Fatalf("Failed to create user: %v", err)
	}

	log.Printf("✓ User created successfully")
	log.Printf("  Username: %s", username)
	log.Printf("  ID: %s", userID)
	log.Println("\nYou can now login at /api/v1/auth/login")
}
