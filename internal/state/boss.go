package state

import (
	"time"
)

// BossState is the presentation state carried on broadcast payloads.
// Transitions are presentation-timed and never gate trade processing.
type BossState string

const (
	BossStateIdle    BossState = "idle"
	BossStateHitting BossState = "hitting"
	BossStateHealing BossState = "healing"
	BossStateDead    BossState = "dead"
)

// Sprites references the four visual states of a boss.
type Sprites struct {
	Idle    string `json:"idle"`
	Hitting string `json:"hitting"`
	Healing string `json:"healing"`
	Dead    string `json:"dead"`
}

// Boss is a stateful opponent defeated by cumulative buy pressure.
// Invariant: 0 <= CurrentHealth <= MaxHealth. Bosses are never deleted,
// only marked defeated; ordering among bosses is by ascending ID.
type Boss struct {
	ID            int        `json:"id"`
	BossID        string     `json:"bossId"` // stable slug
	Name          string     `json:"name"`
	MaxHealth     float64    `json:"maxHealth"`
	CurrentHealth float64    `json:"currentHealth"`
	BuyWeight     float64    `json:"buyWeight"`
	SellWeight    float64    `json:"sellWeight"`
	Sprites       Sprites    `json:"sprites"`
	Twitter       string     `json:"twitter,omitempty"`
	OwnerWallet   string     `json:"ownerWallet,omitempty"`
	IsDefeated    bool       `json:"isDefeated"`
	DefeatedAt    *time.Time `json:"defeatedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// Clone returns a copy so the engine's snapshot cannot alias store state.
func (b *Boss) Clone() *Boss {
	if b == nil {
		return nil
	}
	c := *b
	if b.DefeatedAt != nil {
		t := *b.DefeatedAt
		c.DefeatedAt = &t
	}
	return &c
}

// TradeRecord is an applied trade, keyed by its transaction signature.
// Immutable once stored except for the best-effort trader-address backfill.
type TradeRecord struct {
	ID            int64     `json:"id"`
	BossID        int       `json:"bossId"`
	Signature     string    `json:"signature"`
	Mint          string    `json:"mint"`
	SolAmount     float64   `json:"solAmount"`
	TokenAmount   float64   `json:"tokenAmount"`
	TxType        string    `json:"txType"`
	DamageDealt   float64   `json:"damageDealt"`
	HealApplied   float64   `json:"healApplied"`
	TraderAddress string    `json:"traderAddress,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	CreatedAt     time.Time `json:"createdAt"`
}

// GameSession is the singleton running total across all bosses.
// Totals are monotonically non-decreasing; they are updated additively and
// never recomputed from the trade log.
type GameSession struct {
	ID               int       `json:"id"`
	CurrentBossID    int       `json:"currentBossId"`
	TotalDamageDealt float64   `json:"totalDamageDealt"`
	TotalHealApplied float64   `json:"totalHealApplied"`
	SessionStart     time.Time `json:"sessionStart"`
	LastActivity     time.Time `json:"lastActivity"`
}

// GameStats is the aggregate view served by GET /api/game?action=stats.
type GameStats struct {
	TotalBuyTrades    int     `json:"totalBuyTrades"`
	TotalSellTrades   int     `json:"totalSellTrades"`
	TotalSolFromBuys  float64 `json:"totalSolFromBuys"`
	TotalSolFromSells float64 `json:"totalSolFromSells"`
	TotalDamageDealt  float64 `json:"totalDamageDealt"`
	TotalHealApplied  float64 `json:"totalHealApplied"`
	BossesDefeated    int     `json:"bossesDefeated"`
}

// DamageDealer is one row of the per-boss damage leaderboard.
type DamageDealer struct {
	Address     string  `json:"address"`
	TotalDamage float64 `json:"totalDamage"`
	TotalHeal   float64 `json:"totalHeal"`
	NetDamage   float64 `json:"netDamage"`
	BuyCount    int     `json:"buyCount"`
	SellCount   int     `json:"sellCount"`
}
