// Command migrate applies the Postgres profile schema and the ClickHouse
// archive schema. Both are idempotent.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	_ "github.com/lib/pq"

	"github.com/openmohaa/match-server/internal/config"
	"github.com/openmohaa/match-server/internal/profile"
	"github.com/openmohaa/match-server/internal/worker"
)

func main() {
	skipPostgres := flag.Bool("skip-postgres", false, "do not touch the profile database")
	skipClickHouse := flag.Bool("skip-clickhouse", false, "do not touch the archive database")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if !*skipPostgres {
		if cfg.PostgresURL == "" {
			log.Println("POSTGRES_URL not set, skipping profile schema (SQLite creates its own)")
		} else if err := migratePostgres(ctx, cfg.PostgresURL); err != nil {
			log.Fatal(err)
		} else {
			fmt.Println("Postgres schema applied")
		}
	}

	if !*skipClickHouse {
		if err := migrateClickHouse(ctx, cfg.ClickHouseURL); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("ClickHouse schema applied (%d statements)\n", len(worker.ClickHouseSchema))
	}
}

func migratePostgres(ctx context.Context, url string) error {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	defer db.Close()
	if _, err := db.ExecContext(ctx, profile.PostgresSchema); err != nil {
		return fmt.Errorf("apply profile schema: %w", err)
	}
	return nil
}

func migrateClickHouse(ctx context.Context, dsn string) error {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return fmt.Errorf("parse clickhouse url: %w", err)
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return fmt.Errorf("open clickhouse: %w", err)
	}
	defer conn.Close()
	for _, stmt := range worker.ClickHouseSchema {
		if err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply archive schema: %w", err)
		}
	}
	return nil
}
