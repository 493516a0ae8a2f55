package persistence

import (
	"BossRaid/internal/state"
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a boss, trade, or session does not exist.
var ErrNotFound = errors.New("not found")

// ErrHealthOutOfRange is returned when a health write falls outside
// [0, maxHealth]. The store is the last line of defense; the engine
// clamps before writing, so seeing this error means a bug upstream.
var ErrHealthOutOfRange = errors.New("health out of range")

// Store is the persistence capability surface. Two implementations
// exist: PostgresStore for production and FileStore for local play and
// tests. All writes are idempotent on their natural keys.
type Store interface {
	// Bosses
	GetAllBosses(ctx context.Context) ([]*state.Boss, error)
	GetBossByID(ctx context.Context, id int) (*state.Boss, error)
	GetCurrentBoss(ctx context.Context) (*state.Boss, error)
	RegisterBoss(ctx context.Context, seed state.BossSeed) (*state.Boss, error)
	UpdateBossHealth(ctx context.Context, bossID int, health float64, defeated bool, defeatedAt *time.Time) error

	// Trades
	SaveTrade(ctx context.Context, trade *state.TradeRecord) error
	GetTradesForBoss(ctx context.Context, bossID, limit int) ([]*state.TradeRecord, error)
	SetTraderAddress(ctx context.Context, signature, address string) error

	// Session & aggregates
	GetOrCreateSession(ctx context.Context) (*state.GameSession, error)
	UpdateSession(ctx context.Context, session *state.GameSession) error
	GetGameStats(ctx context.Context) (*state.GameStats, error)
	TopDamageDealers(ctx context.Context, bossID, limit int) ([]*state.DamageDealer, error)

	// ResetAll restores every boss to full health, clears trades, and
	// points the session at the first boss.
	ResetAll(ctx context.Context) error

	Close() error
}
