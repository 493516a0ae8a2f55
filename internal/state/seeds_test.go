package state_test

import (
	"BossRaid/internal/state"
	"testing"
)

func TestApplyOwnerWallets(t *testing.T) {
	seeds := state.DefaultRoster()

	state.ApplyOwnerWallets(seeds, map[string]string{
		"quant-kid":    "QuantWallet1111111111111111111111111111111",
		"no-such-boss": "IgnoredWallet111111111111111111111111111111",
	})

	if seeds[0].BossID != "quant-kid" {
		t.Fatalf("first seed = %q, want quant-kid", seeds[0].BossID)
	}
	if seeds[0].OwnerWallet != "QuantWallet1111111111111111111111111111111" {
		t.Errorf("OwnerWallet = %q, want the mapped wallet", seeds[0].OwnerWallet)
	}
	for _, s := range seeds[1:] {
		if s.OwnerWallet != "" {
			t.Errorf("seed %s got wallet %q, want empty", s.BossID, s.OwnerWallet)
		}
	}
}

func TestDefaultRosterHealthAscends(t *testing.T) {
	seeds := state.DefaultRoster()
	for i := 1; i < len(seeds); i++ {
		if seeds[i].MaxHealth <= seeds[i-1].MaxHealth {
			t.Errorf("seed %s health %v not above %s's %v",
				seeds[i].BossID, seeds[i].MaxHealth, seeds[i-1].BossID, seeds[i-1].MaxHealth)
		}
	}
}
