package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gokatarajesh/certprep/internal/config"
	"github.com/gokatarajesh/certprep/internal/db"
)

func main() {
	command := flag.String("command", "up", "Migration command: up, down, or status")
	flag.Parse()

	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

	if os.Getenv("APP_ENV") != "production" {
		_ = godotenv.Load("configs/.env")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	driver := db.Driver(cfg.Database.Driver)
	dsn := cfg.Database.SQLitePath
	if driver == db.DriverPostgres {
		dsn = cfg.Database.Postgres.DSN()
	}

	conn, err := db.Open(ctx, driver, dsn)
	if err != nil {
		log.Fatal().Err(err).Str("driver", string(driver)).Msg("failed to open database connection")
	}
	defer conn.Close()

	log.Info().Str("driver", string(driver)).Msg("connected to database")

	switch *command {
	case "up":
		if err := db.Migrate(ctx, conn, driver); err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations up")
		}
		log.Info().Msg("migrations applied successfully")

	case "down":
		if err := db.MigrateDown(ctx, conn, driver); err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations down")
		}
		log.Info().Msg("migrations rolled back successfully")

	case "status":
		if err := db.MigrationStatus(ctx, conn, driver); err != nil {
			log.Fatal().Err(err).Msg("failed to get migration status")
		}

	default:
		log.Fatal().Str("command", *command).Msg("unknown command. Use: up, down, or status")
	}
}
