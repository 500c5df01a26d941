package main

import (
	"log"
	"os"

	"billing-ledger/internal/config"
	"billing-ledger/internal/db"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	direction := "up"
	if len(os.Args) > 1 {
		direction = os.Args[1]
	}

	switch direction {
	case "up":
		if err := db.Migrate(cfg.Database.URL); err != nil {
			log.Fatalf("[MIGRATE] up failed: %v", err)
		}
	case "down":
		if err := db.MigrateDown(cfg.Database.URL); err != nil {
			log.Fatalf("[MIGRATE] down failed: %v", err)
		}
	default:
		log.Fatalf("Usage: migrate [up|down]")
	}
	log.Printf("[DONE] migrate %s", direction)
}
