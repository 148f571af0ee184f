package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/playhive/backend/internal/api"
	"github.com/playhive/backend/internal/config"
	"github.com/playhive/backend/internal/database"
	"github.com/playhive/backend/internal/migrations"
	"github.com/playhive/backend/internal/realtime"
	"github.com/playhive/backend/internal/redis"
	"github.com/playhive/backend/internal/store"
	"github.com/playhive/backend/internal/ws"
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

	// Run migrations on start if requested
	if os.Getenv("MIGRATE_ON_START") == "true" {
		log.Println("↗ Running DB migrations on startup...")
		if err := migrations.RunMigrations(cfg.DatabaseURL); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
	}

	// Initialize Redis
	rdb, err := redis.Connect(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer rdb.Close()

	// Persistence collaborators
	users := store.NewUsers(db)
	matches := store.NewMatches(db)
	leaderboard := store.NewLeaderboard(db, rdb)

	// Realtime core: registry emits disconnect signals, rooms and the
	// matchmaker consume them.
	registry := realtime.NewRegistry(rdb)
	rooms := realtime.NewRooms(registry)
	matchmaker := realtime.NewMatchmaker(matches)
	matchmaker.Attach(registry)

	publisher := realtime.NewPublisher(leaderboard, cfg.LeaderboardTopN,
		time.Duration(cfg.LeaderboardPeriodSeconds)*time.Second)

	ctx := context.Background()

	// Workers: leaderboard publish loop, queue expiry sweep, and the
	// points-changed subscriber that kicks the publisher.
	go publisher.Run(ctx)
	go matchmaker.StartSweeper(ctx,
		time.Duration(cfg.QueueSweepSeconds)*time.Second,
		time.Duration(cfg.QueueExpiryMinutes)*time.Minute)
	ws.StartPointsSubscriber(ctx, rdb, publisher)

	// Set up Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	api.SetupRoutes(router, api.Deps{
		Config: cfg,
		Gateway: &ws.Gateway{
			Registry:   registry,
			Rooms:      rooms,
			Matchmaker: matchmaker,
			JWTSecret:  cfg.JWTSecret,
		},
		Publisher:   publisher,
		Matchmaker:  matchmaker,
		Registry:    registry,
		Users:       users,
		Matches:     matches,
		Leaderboard: leaderboard,
	})

	// Start server
	port := cfg.Port
	if port == "" {
		port = "8080"
	}

	log.Printf("Starting PlayHive server on port %s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
