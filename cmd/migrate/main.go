package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/paylinks/pricechange/internal/config"
	"github.com/paylinks/pricechange/internal/logger"
	"github.com/paylinks/pricechange/internal/postgres"
)

func main() {
	// Parse command line flags
	down := flag.Int("down", 0, "Roll back the given number of migrations instead of migrating up")
	flag.Parse()

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger, err := logger.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	logger.Infow("Connecting to database", "host", cfg.Postgres.Host, "dbname", cfg.Postgres.DBName)

	db, err := postgres.NewDB(cfg, logger)
	if err != nil {
		logger.Fatalw("Failed to connect to postgres", "error", err)
	}
	defer db.Close()

	if *down > 0 {
		if err := postgres.RollbackMigrations(db, &cfg.Postgres, *down, logger); err != nil {
			logger.Fatalw("Failed to roll back migrations", "error", err)
		}
	} else {
		if err := postgres.RunMigrations(db, &cfg.Postgres, logger); err != nil {
			logger.Fatalw("Failed to run migrations", "error", err)
		}
	}

	fmt.Println("Migration process completed")
}
