// Seeds a local database with the settings row and one recruiter so the
// pipelines can be exercised end to end against a dev job-board account.
//
// Usage:
//
//	go run ./scripts/seed -name "Dev recruiter" -refresh-token <token> [-balance 1000]
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

func main() {
	name := flag.String("name", "Dev recruiter", "recruiter display name")
	refreshToken := flag.String("refresh-token", "", "job-board OAuth refresh token")
	balance := flag.Float64("balance", 1000, "starting balance, rubles")
	flag.Parse()

	_ = godotenv.Load()
	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}
	if *refreshToken == "" {
		log.Fatal("-refresh-token is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		log.Fatalf("create pool: %v", err)
	}
	defer pool.Close()

	_, err = pool.Exec(ctx, `
		INSERT INTO app_settings (id, balance, cost_per_dialogue, cost_per_long_reminder, low_balance_threshold)
		VALUES (1, $1, 10, 5, 100)
		ON CONFLICT (id) DO UPDATE SET balance = EXCLUDED.balance`, *balance)
	if err != nil {
		log.Fatalf("seed settings: %v", err)
	}

	var id int64
	err = pool.QueryRow(ctx, `
		INSERT INTO recruiters (name, refresh_token)
		VALUES ($1, $2)
		RETURNING id`, *name, *refreshToken).Scan(&id)
	if err != nil {
		log.Fatalf("seed recruiter: %v", err)
	}

	fmt.Printf("seeded recruiter %d with balance %.2f\n", id, *balance)
}
