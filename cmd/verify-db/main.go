package main

import (
	"context"
	"log"
	"os"
	"time"

	"billing-ledger/internal/adapters/cli"
	"billing-ledger/internal/config"
	"billing-ledger/internal/core"
	"billing-ledger/internal/db"
	"billing-ledger/internal/logging"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/pflag"
)

// verifyLockKey serialises verify runs so two repairs never interleave.
const verifyLockKey = 7462840

func main() {
	repair := pflag.Bool("repair", false, "rewrite drifted derived fields")
	pflag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[CONFIG] %v", err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("[CONFIG] logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	pool := connectDB(ctx, cfg.Database.URL)
	defer pool.Close()

	conn := acquireLock(ctx, pool)
	defer conn.Release()

	report, err := core.NewLedgerVerifier(pool, logger).Verify(ctx, *repair)
	if err != nil {
		log.Fatalf("[VERIFY] %v", err)
	}
	cli.PrintVerifyReport(os.Stdout, report)

	if !report.OK() && !*repair {
		os.Exit(1)
	}
	log.Println("[DONE] verification finished.")
}

func connectDB(ctx context.Context, url string) *pgxpool.Pool {
	connCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := db.NewPool(connCtx, url)
	if err != nil {
		log.Fatalf("[CONNECT] %v", err)
	}

	log.Println("[CONNECT] success")
	return pool
}

func acquireLock(ctx context.Context, pool *pgxpool.Pool) *pgxpool.Conn {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		log.Fatalf("[LOCK] failed to acquire connection for lock: %v", err)
	}

	var locked bool
	err = conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", verifyLockKey).Scan(&locked)
	if err != nil {
		log.Fatalf("[LOCK] failed to query advisory lock: %v", err)
	}

	if !locked {
		log.Fatalf("[LOCK] failed: another verify run is in progress")
	}

	log.Println("[LOCK] success")
	return conn
}
