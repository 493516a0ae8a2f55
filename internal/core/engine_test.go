package core_test

import (
	"BossRaid/internal/core"
	"BossRaid/internal/event"
	"BossRaid/internal/state"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// ============================================================================
// Fixture
// ============================================================================

type engineFixture struct {
	engine    *core.Engine
	trades    chan *event.TradeEvent
	persist   chan core.Output
	broadcast chan core.BroadcastEvent
}

func makeBoss(id int, slug string, maxHealth, buyWeight, sellWeight float64) *state.Boss {
	now := time.Now()
	return &state.Boss{
		ID:            id,
		BossID:        slug,
		Name:          slug,
		MaxHealth:     maxHealth,
		CurrentHealth: maxHealth,
		BuyWeight:     buyWeight,
		SellWeight:    sellWeight,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func newEngineFixture(t *testing.T, bosses []*state.Boss, advanceDelay time.Duration) *engineFixture {
	t.Helper()

	trades := make(chan *event.TradeEvent, 64)
	persist := make(chan core.Output, 256)
	broadcast := make(chan core.BroadcastEvent, 256)

	session := &state.GameSession{
		ID:            1,
		CurrentBossID: bosses[0].ID,
		SessionStart:  time.Now(),
		LastActivity:  time.Now(),
	}

	eng := core.NewEngine(core.EngineConfig{
		AdvanceDelay: advanceDelay,
		DedupCap:     1000,
		DedupRetain:  500,
	}, bosses, session, trades, persist, broadcast, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go eng.Run(ctx)
	t.Cleanup(cancel)

	return &engineFixture{engine: eng, trades: trades, persist: persist, broadcast: broadcast}
}

func (f *engineFixture) send(t *testing.T, evt *event.TradeEvent) {
	t.Helper()
	select {
	case f.trades <- evt:
	case <-time.After(time.Second):
		t.Fatal("timeout sending trade to engine")
	}
}

func (f *engineFixture) waitOutput(t *testing.T) core.Output {
	t.Helper()
	select {
	case out := <-f.persist:
		return out
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for persist output")
		return core.Output{}
	}
}

func (f *engineFixture) waitBroadcast(t *testing.T, kind string) core.BroadcastEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case evt := <-f.broadcast:
			if evt.Kind == kind {
				return evt
			}
		case <-deadline:
			t.Fatalf("timeout waiting for %q broadcast", kind)
			return core.BroadcastEvent{}
		}
	}
}

func trade(sig, txType string, sol float64) *event.TradeEvent {
	return &event.TradeEvent{
		Signature:       sig,
		Mint:            "test-mint",
		TraderPublicKey: "trader-wallet",
		SolAmount:       sol,
		TokenAmount:     1_000_000,
		TxType:          event.TxType(txType),
		Timestamp:       time.Now(),
	}
}

// ============================================================================
// Test: trade application
// ============================================================================

func TestEngine_BuyDealsScaledDamage(t *testing.T) {
	f := newEngineFixture(t, []*state.Boss{makeBoss(1, "quant-kid", 1000, 0.5, 0.5)}, time.Minute)

	f.send(t, trade("sig-buy", "buy", 2.0))
	out := f.waitOutput(t)

	// 2 SOL * 200 * 0.5 = 200 damage
	if got, want := out.Trade.DamageDealt, 200.0; got != want {
		t.Errorf("DamageDealt = %v, want %v", got, want)
	}
	if got, want := out.Boss.CurrentHealth, 800.0; got != want {
		t.Errorf("CurrentHealth = %v, want %v", got, want)
	}
	if got, want := out.Session.TotalDamageDealt, 200.0; got != want {
		t.Errorf("TotalDamageDealt = %v, want %v", got, want)
	}
}

func TestEngine_CreateCountsAsBuy(t *testing.T) {
	f := newEngineFixture(t, []*state.Boss{makeBoss(1, "quant-kid", 1000, 0.5, 0.5)}, time.Minute)

	f.send(t, trade("sig-create", "create", 1.0))
	out := f.waitOutput(t)

	if out.Trade.DamageDealt != 100.0 {
		t.Errorf("DamageDealt = %v, want 100 (create treated as buy)", out.Trade.DamageDealt)
	}
	if out.Trade.HealApplied != 0 {
		t.Errorf("HealApplied = %v, want 0", out.Trade.HealApplied)
	}
}

func TestEngine_SellHealsClampedAtMax(t *testing.T) {
	boss := makeBoss(1, "quant-kid", 1000, 0.5, 0.5)
	boss.CurrentHealth = 950
	f := newEngineFixture(t, []*state.Boss{boss}, time.Minute)

	// 2 SOL * 200 * 0.5 = 200 heal, clamps at maxHealth
	f.send(t, trade("sig-sell", "sell", 2.0))
	out := f.waitOutput(t)

	if got, want := out.Trade.HealApplied, 200.0; got != want {
		t.Errorf("HealApplied = %v, want %v", got, want)
	}
	if got, want := out.Boss.CurrentHealth, 1000.0; got != want {
		t.Errorf("CurrentHealth = %v, want %v (clamped at max)", got, want)
	}
}

func TestEngine_DamageClampedAtZeroAndDefeats(t *testing.T) {
	boss := makeBoss(1, "quant-kid", 100, 1.0, 0.5)
	f := newEngineFixture(t, []*state.Boss{boss}, time.Minute)

	// 5 SOL * 200 * 1.0 = 1000 damage against 100 health
	f.send(t, trade("sig-kill", "buy", 5.0))
	out := f.waitOutput(t)

	if out.Boss.CurrentHealth != 0 {
		t.Errorf("CurrentHealth = %v, want 0", out.Boss.CurrentHealth)
	}
	if !out.Boss.IsDefeated {
		t.Error("boss should be defeated at zero health")
	}
	if out.Boss.DefeatedAt == nil {
		t.Error("DefeatedAt should be set on defeat")
	}

	evt := f.waitBroadcast(t, core.BroadcastDefeat)
	if evt.State != state.BossStateDead {
		t.Errorf("broadcast State = %q, want %q", evt.State, state.BossStateDead)
	}
}

func TestEngine_OwnerWalletInstantKill(t *testing.T) {
	boss := makeBoss(1, "quant-kid", 500_000, 0.5, 0.5)
	boss.OwnerWallet = "owner-wallet"
	f := newEngineFixture(t, []*state.Boss{boss}, time.Minute)

	evt := trade("sig-owner", "sell", 0.001)
	evt.TraderPublicKey = "owner-wallet"
	f.send(t, evt)
	out := f.waitOutput(t)

	if out.Boss.CurrentHealth != 0 {
		t.Errorf("CurrentHealth = %v, want 0 (owner trade is an instant kill)", out.Boss.CurrentHealth)
	}
	if !out.Boss.IsDefeated {
		t.Error("boss should be defeated")
	}
	if got, want := out.Trade.DamageDealt, 500_000.0; got != want {
		t.Errorf("DamageDealt = %v, want %v (remaining health)", got, want)
	}
}

func TestEngine_DuplicateSignatureDropped(t *testing.T) {
	f := newEngineFixture(t, []*state.Boss{makeBoss(1, "quant-kid", 1000, 0.5, 0.5)}, time.Minute)

	f.send(t, trade("sig-dup", "buy", 1.0))
	f.waitOutput(t)

	f.send(t, trade("sig-dup", "buy", 1.0))
	f.send(t, trade("sig-next", "buy", 1.0))

	// Only the distinct signature produces output.
	out := f.waitOutput(t)
	if out.Trade.Signature != "sig-next" {
		t.Errorf("got output for %q, want sig-next (duplicate must be dropped)", out.Trade.Signature)
	}

	current, _, _ := f.engine.Snapshot()
	if got, want := current.CurrentHealth, 800.0; got != want {
		t.Errorf("CurrentHealth = %v, want %v (two applied trades, one duplicate)", got, want)
	}
}

// ============================================================================
// Test: boss rotation
// ============================================================================

func TestEngine_AdvancesToNextBossAfterDelay(t *testing.T) {
	bosses := []*state.Boss{
		makeBoss(1, "quant-kid", 100, 1.0, 0.5),
		makeBoss(2, "cooker-flips", 2000, 0.6, 0.4),
	}
	f := newEngineFixture(t, bosses, 20*time.Millisecond)

	f.send(t, trade("sig-kill", "buy", 5.0))
	f.waitBroadcast(t, core.BroadcastDefeat)

	evt := f.waitBroadcast(t, core.BroadcastAdvance)
	if evt.Boss.ID != 2 {
		t.Errorf("advanced to boss %d, want 2", evt.Boss.ID)
	}

	_, _, session := f.engine.Snapshot()
	if session.CurrentBossID != 2 {
		t.Errorf("CurrentBossID = %d, want 2", session.CurrentBossID)
	}
}

func TestEngine_TradesAgainstDefeatedBossDropped(t *testing.T) {
	// Single boss, long advance delay: after defeat the session still
	// points at the dead boss and trades must not resurrect it.
	f := newEngineFixture(t, []*state.Boss{makeBoss(1, "quant-kid", 100, 1.0, 1.0)}, time.Minute)

	f.send(t, trade("sig-kill", "buy", 5.0))
	f.waitOutput(t)

	f.send(t, trade("sig-late-sell", "sell", 5.0))

	// Give the engine a beat, then confirm nothing was emitted and the
	// boss stayed dead.
	time.Sleep(50 * time.Millisecond)
	select {
	case out := <-f.persist:
		t.Fatalf("unexpected output for %q against defeated boss", out.Trade.Signature)
	default:
	}

	current, _, _ := f.engine.Snapshot()
	if current.CurrentHealth != 0 || !current.IsDefeated {
		t.Errorf("boss health = %v defeated = %v, want 0/true", current.CurrentHealth, current.IsDefeated)
	}
}

// ============================================================================
// Test: manual adjustments
// ============================================================================

func TestEngine_ApplyAdjustment(t *testing.T) {
	f := newEngineFixture(t, []*state.Boss{makeBoss(1, "quant-kid", 1000, 0.5, 0.5)}, time.Minute)
	ctx := context.Background()

	boss, err := f.engine.ApplyAdjustment(ctx, 1, "adj-1", 300, 0)
	if err != nil {
		t.Fatalf("ApplyAdjustment: %v", err)
	}
	if got, want := boss.CurrentHealth, 700.0; got != want {
		t.Errorf("CurrentHealth = %v, want %v", got, want)
	}
}

func TestEngine_ApplyAdjustmentErrors(t *testing.T) {
	boss := makeBoss(1, "quant-kid", 1000, 0.5, 0.5)
	f := newEngineFixture(t, []*state.Boss{boss}, time.Minute)
	ctx := context.Background()

	if _, err := f.engine.ApplyAdjustment(ctx, 99, "adj-unknown", 10, 0); !errors.Is(err, core.ErrUnknownBoss) {
		t.Errorf("unknown boss: got %v, want ErrUnknownBoss", err)
	}

	if _, err := f.engine.ApplyAdjustment(ctx, 1, "adj-1", 10, 0); err != nil {
		t.Fatalf("first adjustment: %v", err)
	}
	if _, err := f.engine.ApplyAdjustment(ctx, 1, "adj-1", 10, 0); !errors.Is(err, core.ErrDuplicateTrade) {
		t.Errorf("duplicate: got %v, want ErrDuplicateTrade", err)
	}

	// Kill the boss, then try to heal it.
	if _, err := f.engine.ApplyAdjustment(ctx, 1, "adj-kill", 5000, 0); err != nil {
		t.Fatalf("kill adjustment: %v", err)
	}
	if _, err := f.engine.ApplyAdjustment(ctx, 1, "adj-heal", 0, 100); !errors.Is(err, core.ErrBossDefeated) {
		t.Errorf("heal on defeated: got %v, want ErrBossDefeated", err)
	}
}

// ============================================================================
// Test: reset
// ============================================================================

func TestEngine_Reset(t *testing.T) {
	bosses := []*state.Boss{
		makeBoss(1, "quant-kid", 100, 1.0, 0.5),
		makeBoss(2, "cooker-flips", 2000, 0.6, 0.4),
	}
	f := newEngineFixture(t, bosses, 5*time.Millisecond)

	f.send(t, trade("sig-kill", "buy", 5.0))
	f.waitBroadcast(t, core.BroadcastDefeat)
	f.waitBroadcast(t, core.BroadcastAdvance)

	if err := f.engine.Reset(context.Background()); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	current, roster, session := f.engine.Snapshot()
	if current.ID != 1 {
		t.Errorf("current boss = %d after reset, want 1", current.ID)
	}
	for _, b := range roster {
		if b.CurrentHealth != b.MaxHealth || b.IsDefeated {
			t.Errorf("boss %d health %v/%v defeated=%v, want full health", b.ID, b.CurrentHealth, b.MaxHealth, b.IsDefeated)
		}
	}
	if session.TotalDamageDealt != 0 || session.TotalHealApplied != 0 {
		t.Errorf("session totals %v/%v, want 0/0", session.TotalDamageDealt, session.TotalHealApplied)
	}

	// Dedup resets too: the old signature applies again.
	f.send(t, trade("sig-kill", "buy", 0.1))
	out := f.waitOutput(t)
	if out.Trade.Signature != "sig-kill" {
		t.Errorf("got %q, want sig-kill accepted after reset", out.Trade.Signature)
	}
}
