// Command soundtrail runs the Soundtrail listening-event enrichment service.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/soundtrail/soundtrail/internal/auth"
	"github.com/soundtrail/soundtrail/internal/catalog"
	"github.com/soundtrail/soundtrail/internal/db"
	"github.com/soundtrail/soundtrail/internal/enrich"
	"github.com/soundtrail/soundtrail/internal/web"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env when present; deployments set the environment directly.
	_ = godotenv.Load()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("SOUNDTRAIL_DEBUG") != "" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return fmt.Errorf("please set the DATABASE_URL environment variable")
	}

	ctx := context.Background()

	database, err := db.New(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer database.Close()

	authenticator, err := auth.New()
	if err != nil {
		return fmt.Errorf("creating authenticator: %w", err)
	}

	spotifyClient, err := authenticator.Authenticate(ctx)
	if err != nil {
		return fmt.Errorf("authenticating with Spotify: %w", err)
	}

	engine := enrich.New(
		catalog.New(spotifyClient, logger),
		db.NewTrackStore(database, logger),
		logger,
	)

	engineCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	engine.Start(engineCtx)

	addr := os.Getenv("SOUNDTRAIL_ADDR")
	if addr == "" {
		addr = web.DefaultAddr
	}

	server := web.NewServer(web.ServerConfig{
		Addr:   addr,
		Engine: engine,
		DB:     database,
		Logger: logger,
	})

	return server.Run()
}
