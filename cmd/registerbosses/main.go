package main

import (
	"BossRaid/internal/persistence"
	"BossRaid/internal/state"
	"context"
	"log"
	"os"
	"strings"
	"time"
)

// Seeds the default boss roster into the configured store. Safe to run
// repeatedly: registration preserves the current health of bosses that
// already exist.
func main() {
	log.SetFlags(log.LstdFlags)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var store persistence.Store
	if dsn := os.Getenv("BOSSRAID_POSTGRES_DSN"); dsn != "" {
		pg, err := persistence.OpenPostgres(ctx, dsn)
		if err != nil {
			log.Fatalf("FATAL: postgres open: %v", err)
		}
		store = pg
	} else {
		path := os.Getenv("BOSSRAID_DATA_FILE")
		if path == "" {
			path = "data/game-data.json"
		}
		fs, err := persistence.OpenFileStore(path)
		if err != nil {
			log.Fatalf("FATAL: open file store %s: %v", path, err)
		}
		store = fs
	}
	defer store.Close()

	roster := state.DefaultRoster()
	state.ApplyOwnerWallets(roster, ownerWalletsFromEnv())
	log.Printf("Registering %d bosses...", len(roster))

	for _, seed := range roster {
		boss, err := store.RegisterBoss(ctx, seed)
		if err != nil {
			log.Fatalf("FATAL: register %s: %v", seed.BossID, err)
		}
		log.Printf("  ✅ %s (id=%d, hp=%.0f/%.0f, buy=%.2f, sell=%.2f)",
			boss.Name, boss.ID, boss.CurrentHealth, boss.MaxHealth, boss.BuyWeight, boss.SellWeight)
	}

	log.Println("Boss registration complete.")
}

// ownerWalletsFromEnv parses BOSSRAID_OWNER_WALLETS, a comma list of
// "slug=wallet" pairs.
func ownerWalletsFromEnv() map[string]string {
	out := make(map[string]string)
	for _, part := range strings.Split(os.Getenv("BOSSRAID_OWNER_WALLETS"), ",") {
		slug, wallet, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || slug == "" || wallet == "" {
			continue
		}
		out[slug] = wallet
	}
	return out
}
