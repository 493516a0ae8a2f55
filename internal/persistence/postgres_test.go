package persistence_test

import (
	"BossRaid/internal/persistence"
	"BossRaid/internal/state"
	"BossRaid/internal/testutil"
	"context"
	"errors"
	"testing"
	"time"
)

// Integration coverage for the Postgres backend. Skips unless a test
// database is reachable and INTEGRATION_TEST is set.
func setupPostgres(t *testing.T) *persistence.PostgresStore {
	t.Helper()
	testutil.RequireIntegration(t)

	db, cleanup := testutil.SetupTestDB(t)
	t.Cleanup(cleanup)

	ctx := context.Background()
	if err := persistence.NewMigrator(db, "../../migrations").Up(ctx); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	store := persistence.NewPostgresStore(db)
	for _, seed := range []state.BossSeed{
		seedBoss("quant-kid", 1000),
		seedBoss("cooker-flips", 2000),
	} {
		if _, err := store.RegisterBoss(ctx, seed); err != nil {
			t.Fatalf("RegisterBoss %s: %v", seed.BossID, err)
		}
	}
	return store
}

func TestPostgresStore_TradeRoundTrip(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()

	bosses, err := store.GetAllBosses(ctx)
	if err != nil {
		t.Fatalf("GetAllBosses: %v", err)
	}
	if len(bosses) != 2 {
		t.Fatalf("got %d bosses, want 2", len(bosses))
	}
	bossID := bosses[0].ID

	trade := &state.TradeRecord{
		BossID:      bossID,
		Signature:   "pg-sig-1",
		Mint:        "TokenMint111",
		SolAmount:   1.5,
		TokenAmount: 42000,
		TxType:      "buy",
		DamageDealt: 150,
		Timestamp:   time.Now(),
	}
	if err := store.SaveTrade(ctx, trade); err != nil {
		t.Fatalf("SaveTrade: %v", err)
	}
	if err := store.SaveTrade(ctx, trade); err != nil {
		t.Fatalf("SaveTrade replay: %v", err)
	}

	trades, err := store.GetTradesForBoss(ctx, bossID, 10)
	if err != nil {
		t.Fatalf("GetTradesForBoss: %v", err)
	}
	if len(trades) != 1 {
		t.Errorf("got %d trades, want 1 (ON CONFLICT DO NOTHING)", len(trades))
	}
}

func TestPostgresStore_RegisterBossOwnerWallet(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()

	seed := seedBoss("toly-wizard", 500000)
	seed.OwnerWallet = "TolyWallet11111111111111111111111111111111"
	boss, err := store.RegisterBoss(ctx, seed)
	if err != nil {
		t.Fatalf("RegisterBoss: %v", err)
	}
	if boss.OwnerWallet != seed.OwnerWallet {
		t.Errorf("OwnerWallet = %q, want %q", boss.OwnerWallet, seed.OwnerWallet)
	}

	got, err := store.GetBossByID(ctx, boss.ID)
	if err != nil {
		t.Fatalf("GetBossByID: %v", err)
	}
	if got.OwnerWallet != seed.OwnerWallet {
		t.Errorf("stored OwnerWallet = %q, want %q", got.OwnerWallet, seed.OwnerWallet)
	}

	seed.OwnerWallet = "RotatedWallet11111111111111111111111111111"
	updated, err := store.RegisterBoss(ctx, seed)
	if err != nil {
		t.Fatalf("RegisterBoss update: %v", err)
	}
	if updated.OwnerWallet != seed.OwnerWallet {
		t.Errorf("OwnerWallet after update = %q, want %q", updated.OwnerWallet, seed.OwnerWallet)
	}
}

func TestPostgresStore_HealthRangeEnforced(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()

	bosses, _ := store.GetAllBosses(ctx)
	bossID := bosses[0].ID

	err := store.UpdateBossHealth(ctx, bossID, bosses[0].MaxHealth+1, false, nil)
	if !errors.Is(err, persistence.ErrHealthOutOfRange) {
		t.Errorf("got %v, want ErrHealthOutOfRange", err)
	}

	if err := store.UpdateBossHealth(ctx, bossID, 500, false, nil); err != nil {
		t.Errorf("in-range update: %v", err)
	}
}

func TestPostgresStore_SessionAndReset(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()

	sess, err := store.GetOrCreateSession(ctx)
	if err != nil {
		t.Fatalf("GetOrCreateSession: %v", err)
	}

	sess.TotalDamageDealt = 1234
	sess.LastActivity = time.Now()
	if err := store.UpdateSession(ctx, sess); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}

	if err := store.ResetAll(ctx); err != nil {
		t.Fatalf("ResetAll: %v", err)
	}

	after, err := store.GetOrCreateSession(ctx)
	if err != nil {
		t.Fatalf("GetOrCreateSession after reset: %v", err)
	}
	if after.TotalDamageDealt != 0 {
		t.Errorf("TotalDamageDealt = %v after reset, want 0", after.TotalDamageDealt)
	}

	bosses, _ := store.GetAllBosses(ctx)
	for _, b := range bosses {
		if b.CurrentHealth != b.MaxHealth || b.IsDefeated {
			t.Errorf("boss %d not restored after reset", b.ID)
		}
	}
}
