package main

import (
	"context"
	"flag"
	"route-segment-service/internal/adapters/repositories"
	"route-segment-service/internal/config"
	"route-segment-service/internal/platform/db"
	"route-segment-service/internal/platform/logger"

	"github.com/joho/godotenv"
)

func main() {
	envErr := godotenv.Load()

	cfg := config.Load()
	logger.Init(cfg.LogLevel)
	defer logger.Sync()
	log := logger.GetLogger("dbtool")

	if envErr != nil {
		log.Info("no .env file found, using environment variables")
	}

	schemaOnly := flag.Bool("schema-only", false, "create the schema without seeding")
	seedPath := flag.String("seed", cfg.SeedPath, "path to the JSON seed file")
	flag.Parse()

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	ctx := context.Background()

	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalw("open database", "err", err)
	}
	defer conn.Close()

	log.Info("initializing database schema")
	if err := repositories.InitSchema(ctx, conn); err != nil {
		log.Fatalw("schema initialization failed", "err", err)
	}
	log.Info("schema ready")

	if *schemaOnly {
		return
	}

	log.Infow("seeding database", "seed", *seedPath)
	if err := repositories.SeedFromJSON(ctx, conn, *seedPath); err != nil {
		log.Fatalw("seeding failed", "err", err)
	}
	log.Info("seeding complete")
}
