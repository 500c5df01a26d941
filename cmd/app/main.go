package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"billing-ledger/internal/adapters/cli"
	webAdapter "billing-ledger/internal/adapters/web"
	"billing-ledger/internal/app"
	"billing-ledger/internal/config"
	"billing-ledger/internal/db"
	"billing-ledger/internal/logging"

	"github.com/spf13/pflag"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: app <command> [args]\nCommands: customers, customer-add, bill, bill-new, items, pay, return, mark-paid, statement, verify, token")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if os.Args[1] == "token" {
		issueToken(cfg, os.Args[2:])
		return
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()

	svc := app.NewAppService(app.NewServices(pool, logger))
	cli.Run(ctx, svc, os.Args[1:])
}

// issueToken prints a signed API token for the web adapter.
func issueToken(cfg *config.Config, args []string) {
	fs := pflag.NewFlagSet("token", pflag.ExitOnError)
	subject := fs.String("subject", "", "token subject, e.g. a counter or user name")
	role := fs.String("role", "clerk", "role claim")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	_ = fs.Parse(args)

	if cfg.Server.JWTSecret == "" {
		log.Fatal("JWT_SECRET is not set")
	}
	if *subject == "" {
		log.Fatal("Usage: app token --subject <name> [--role clerk] [--ttl 24h]")
	}
	token, err := webAdapter.IssueToken(cfg.Server.JWTSecret, *subject, *role, *ttl)
	if err != nil {
		log.Fatalf("token: %v", err)
	}
	fmt.Println(token)
}
