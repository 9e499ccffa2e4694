package main

import (
	"LendingAggregator/internal/observability"
	"LendingAggregator/internal/persistence"
	"context"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: migrate <up|down|status>")
		fmt.Println("  up     - apply all pending migrations")
		fmt.Println("  down   - roll back the last migration")
		fmt.Println("  status - list pending migrations")
		fmt.Println()
		fmt.Println("Environment:")
		fmt.Println("  LAGG_POSTGRES_DSN    - Postgres connection string (required)")
		fmt.Println("  LAGG_MIGRATIONS_DIR  - path to migrations directory (default: migrations)")
		os.Exit(1)
	}

	_ = godotenv.Load()

	dsn := os.Getenv("LAGG_POSTGRES_DSN")
	if dsn == "" {
		dsn = "postgres://localhost:5432/lagg?sslmode=disable"
	}

	migrationsDir := os.Getenv("LAGG_MIGRATIONS_DIR")
	if migrationsDir == "" {
		migrationsDir = "migrations"
	}

	ctx := context.Background()
	db, err := persistence.Open(ctx, dsn)
	if err != nil {
		log.Fatalf("FATAL: open db: %v", err)
	}
	defer db.Close()

	migrator := persistence.NewMigrator(db, migrationsDir, observability.NewLogger("migrate"))

	switch os.Args[1] {
	case "up":
		if err := migrator.Up(ctx); err != nil {
			log.Fatalf("FATAL: migrate up: %v", err)
		}
		log.Println("INFO: all migrations applied")

	case "down":
		if err := migrator.Down(ctx); err != nil {
			log.Fatalf("FATAL: migrate down: %v", err)
		}
		log.Println("INFO: last migration rolled back")

	case "status":
		pending, err := migrator.Pending(ctx)
		if err != nil {
			log.Fatalf("FATAL: migrate status: %v", err)
		}
		if len(pending) == 0 {
			log.Println("INFO: no pending migrations")
		}
		for _, f := range pending {
			fmt.Println(f)
		}

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s (use 'up', 'down' or 'status')\n", os.Args[1])
		os.Exit(1)
	}
}
