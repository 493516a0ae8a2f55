package persistence_test

import (
	"BossRaid/internal/core"
	"BossRaid/internal/persistence"
	"BossRaid/internal/state"
	"context"
	"testing"
	"time"
)

func TestWorker_PersistsEngineOutput(t *testing.T) {
	fs, _ := openSeededStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	outputs := make(chan core.Output, 16)
	worker := persistence.NewWorker(fs, outputs, 3, nil)
	go worker.Run(ctx)

	defeatedAt := time.Now()
	outputs <- core.Output{
		Trade: &state.TradeRecord{
			BossID:      1,
			Signature:   "worker-sig",
			Mint:        "TokenMint111",
			SolAmount:   1.0,
			TxType:      "buy",
			DamageDealt: 100,
			Timestamp:   time.Now(),
		},
		Boss: &state.Boss{
			ID:            1,
			CurrentHealth: 0,
			MaxHealth:     1000,
			IsDefeated:    true,
			DefeatedAt:    &defeatedAt,
		},
		Session: &state.GameSession{
			ID:               1,
			CurrentBossID:    1,
			TotalDamageDealt: 100,
			LastActivity:     time.Now(),
		},
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		trades, err := fs.GetTradesForBoss(ctx, 1, 10)
		if err != nil {
			t.Fatalf("GetTradesForBoss: %v", err)
		}
		boss, err := fs.GetBossByID(ctx, 1)
		if err != nil {
			t.Fatalf("GetBossByID: %v", err)
		}
		if len(trades) == 1 && boss.CurrentHealth == 0 && boss.IsDefeated {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("worker never flushed: %d trades, health %v", len(trades), boss.CurrentHealth)
		}
		time.Sleep(5 * time.Millisecond)
	}

	sess, err := fs.GetOrCreateSession(ctx)
	if err != nil {
		t.Fatalf("GetOrCreateSession: %v", err)
	}
	if sess.TotalDamageDealt != 100 {
		t.Errorf("TotalDamageDealt = %v, want 100", sess.TotalDamageDealt)
	}
}

func TestWorker_OutOfRangeWriteDoesNotWedge(t *testing.T) {
	fs, _ := openSeededStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	outputs := make(chan core.Output, 16)
	worker := persistence.NewWorker(fs, outputs, 3, nil)
	go worker.Run(ctx)

	// A health write outside [0, max] fails all retries; the next
	// output must still land.
	outputs <- core.Output{
		Boss: &state.Boss{ID: 1, CurrentHealth: 5000, MaxHealth: 1000},
	}
	outputs <- core.Output{
		Trade: &state.TradeRecord{
			BossID: 1, Signature: "after-bad-write", Mint: "m",
			TxType: "buy", Timestamp: time.Now(),
		},
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		trades, _ := fs.GetTradesForBoss(ctx, 1, 10)
		if len(trades) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("trade after failed write never persisted")
		}
		time.Sleep(10 * time.Millisecond)
	}

	boss, _ := fs.GetBossByID(ctx, 1)
	if boss.CurrentHealth != boss.MaxHealth {
		t.Errorf("health = %v, want untouched %v after rejected write", boss.CurrentHealth, boss.MaxHealth)
	}
}
