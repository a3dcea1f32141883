package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
)

// reset-checkpoint deletes the mirrored "bridge_loop" checkpoint row so an
// operator can force the next restart's bootstrap log message to read as
// a fresh mirror, without affecting the engine's own in-memory state
// (which always re-bootstraps from the configured contract birth blocks
// regardless of this table).
func main() {
	dbURL := os.Getenv("DB_URL")
	if dbURL == "" {
		log.Fatal("DB_URL is required")
	}

	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		log.Fatalf("unable to parse db url: %v", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		log.Fatalf("unable to connect to database: %v", err)
	}
	defer pool.Close()

	ctx := context.Background()

	const name = "bridge_loop"
	cmdTag, err := pool.Exec(ctx, "DELETE FROM bridge_checkpoints WHERE name = $1", name)
	if err != nil {
		log.Fatalf("failed to delete checkpoint: %v", err)
	}

	if cmdTag.RowsAffected() == 0 {
		fmt.Printf("no mirrored checkpoint found for %q\n", name)
	} else {
		fmt.Printf("deleted mirrored checkpoint for %q\n", name)
	}
}
