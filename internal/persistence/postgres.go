package persistence

import (
	"BossRaid/internal/state"
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore is the production Store backed by lib/pq. Schema lives
// in migrations/ and is applied by cmd/migrate.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStore wraps an existing connection (used by tests).
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for the migrator.
func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

const bossColumns = `id, boss_id, name, max_health, current_health, buy_weight, sell_weight,
	sprite_idle, sprite_hitting, sprite_healing, sprite_dead, twitter, owner_wallet,
	is_defeated, defeated_at, created_at, updated_at`

func scanBoss(row interface{ Scan(...interface{}) error }) (*state.Boss, error) {
	var b state.Boss
	var defeatedAt sql.NullTime
	var twitter, ownerWallet sql.NullString
	err := row.Scan(
		&b.ID, &b.BossID, &b.Name, &b.MaxHealth, &b.CurrentHealth, &b.BuyWeight, &b.SellWeight,
		&b.Sprites.Idle, &b.Sprites.Hitting, &b.Sprites.Healing, &b.Sprites.Dead,
		&twitter, &ownerWallet,
		&b.IsDefeated, &defeatedAt, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if defeatedAt.Valid {
		t := defeatedAt.Time
		b.DefeatedAt = &t
	}
	b.Twitter = twitter.String
	b.OwnerWallet = ownerWallet.String
	return &b, nil
}

func (s *PostgresStore) GetAllBosses(ctx context.Context) ([]*state.Boss, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+bossColumns+` FROM bosses ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query bosses: %w", err)
	}
	defer rows.Close()

	var bosses []*state.Boss
	for rows.Next() {
		b, err := scanBoss(rows)
		if err != nil {
			return nil, fmt.Errorf("scan boss: %w", err)
		}
		bosses = append(bosses, b)
	}
	return bosses, rows.Err()
}

func (s *PostgresStore) GetBossByID(ctx context.Context, id int) (*state.Boss, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+bossColumns+` FROM bosses WHERE id = $1`, id)
	b, err := scanBoss(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get boss %d: %w", id, err)
	}
	return b, nil
}

// GetCurrentBoss resolves the session's current boss, falling back to
// the first undefeated boss if the session points at a stale ID.
func (s *PostgresStore) GetCurrentBoss(ctx context.Context) (*state.Boss, error) {
	session, err := s.GetOrCreateSession(ctx)
	if err != nil {
		return nil, err
	}

	b, err := s.GetBossByID(ctx, session.CurrentBossID)
	if err == nil {
		return b, nil
	}
	if err != ErrNotFound {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+bossColumns+` FROM bosses WHERE is_defeated = FALSE ORDER BY id ASC LIMIT 1`)
	b, err = scanBoss(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get current boss: %w", err)
	}
	return b, nil
}

// RegisterBoss upserts by slug. Re-registering an existing boss updates
// its static fields but never touches current health or defeat state.
func (s *PostgresStore) RegisterBoss(ctx context.Context, seed state.BossSeed) (*state.Boss, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO bosses
			(boss_id, name, max_health, current_health, buy_weight, sell_weight,
			 sprite_idle, sprite_hitting, sprite_healing, sprite_dead, twitter,
			 owner_wallet, is_defeated, created_at, updated_at)
		VALUES ($1, $2, $3, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''), FALSE, NOW(), NOW())
		ON CONFLICT (boss_id) DO UPDATE SET
			name = EXCLUDED.name,
			max_health = EXCLUDED.max_health,
			buy_weight = EXCLUDED.buy_weight,
			sell_weight = EXCLUDED.sell_weight,
			sprite_idle = EXCLUDED.sprite_idle,
			sprite_hitting = EXCLUDED.sprite_hitting,
			sprite_healing = EXCLUDED.sprite_healing,
			sprite_dead = EXCLUDED.sprite_dead,
			twitter = EXCLUDED.twitter,
			owner_wallet = EXCLUDED.owner_wallet,
			updated_at = NOW()
		RETURNING `+bossColumns,
		seed.BossID, seed.Name, seed.MaxHealth, seed.BuyWeight, seed.SellWeight,
		seed.Sprites.Idle, seed.Sprites.Hitting, seed.Sprites.Healing, seed.Sprites.Dead,
		seed.Twitter, seed.OwnerWallet,
	)
	b, err := scanBoss(row)
	if err != nil {
		return nil, fmt.Errorf("register boss %s: %w", seed.BossID, err)
	}
	return b, nil
}

func (s *PostgresStore) UpdateBossHealth(ctx context.Context, bossID int, health float64, defeated bool, defeatedAt *time.Time) error {
	var maxHealth float64
	err := s.db.QueryRowContext(ctx,
		`SELECT max_health FROM bosses WHERE id = $1`, bossID).Scan(&maxHealth)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup boss %d: %w", bossID, err)
	}
	if health < 0 || health > maxHealth {
		return fmt.Errorf("%w: %.2f not in [0, %.2f]", ErrHealthOutOfRange, health, maxHealth)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE bosses
		SET current_health = $2, is_defeated = $3, defeated_at = $4, updated_at = NOW()
		WHERE id = $1`,
		bossID, health, defeated, defeatedAt,
	)
	if err != nil {
		return fmt.Errorf("update boss %d health: %w", bossID, err)
	}
	return nil
}

// SaveTrade is idempotent on signature: replaying an applied trade is a
// no-op, never a double-write.
func (s *PostgresStore) SaveTrade(ctx context.Context, trade *state.TradeRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trades
			(boss_id, signature, mint, sol_amount, token_amount, tx_type,
			 damage_dealt, heal_applied, trader_address, timestamp, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10, NOW())
		ON CONFLICT (signature) DO NOTHING`,
		trade.BossID, trade.Signature, trade.Mint, trade.SolAmount, trade.TokenAmount,
		trade.TxType, trade.DamageDealt, trade.HealApplied, trade.TraderAddress, trade.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("save trade %s: %w", trade.Signature, err)
	}
	return nil
}

func (s *PostgresStore) GetTradesForBoss(ctx context.Context, bossID, limit int) ([]*state.TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, boss_id, signature, mint, sol_amount, token_amount, tx_type,
		       damage_dealt, heal_applied, COALESCE(trader_address, ''), timestamp, created_at
		FROM trades
		WHERE boss_id = $1
		ORDER BY timestamp DESC
		LIMIT $2`,
		bossID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var trades []*state.TradeRecord
	for rows.Next() {
		var t state.TradeRecord
		if err := rows.Scan(
			&t.ID, &t.BossID, &t.Signature, &t.Mint, &t.SolAmount, &t.TokenAmount,
			&t.TxType, &t.DamageDealt, &t.HealApplied, &t.TraderAddress, &t.Timestamp, &t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		trades = append(trades, &t)
	}
	return trades, rows.Err()
}

// SetTraderAddress backfills the trader wallet on a stored trade. Used
// by the on-chain lookup worker; missing signatures are not an error.
func (s *PostgresStore) SetTraderAddress(ctx context.Context, signature, address string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE trades SET trader_address = $2 WHERE signature = $1 AND trader_address IS NULL`,
		signature, address,
	)
	if err != nil {
		return fmt.Errorf("set trader address %s: %w", signature, err)
	}
	return nil
}

func (s *PostgresStore) GetOrCreateSession(ctx context.Context) (*state.GameSession, error) {
	var sess state.GameSession
	err := s.db.QueryRowContext(ctx, `
		SELECT id, current_boss_id, total_damage_dealt, total_heal_applied, session_start, last_activity
		FROM game_sessions ORDER BY id ASC LIMIT 1`,
	).Scan(&sess.ID, &sess.CurrentBossID, &sess.TotalDamageDealt, &sess.TotalHealApplied,
		&sess.SessionStart, &sess.LastActivity)
	if err == nil {
		return &sess, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("query session: %w", err)
	}

	// No session yet: start at the first undefeated boss.
	var firstBossID int
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM bosses WHERE is_defeated = FALSE ORDER BY id ASC LIMIT 1`,
	).Scan(&firstBossID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("create session: no bosses registered")
	}
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO game_sessions (current_boss_id, total_damage_dealt, total_heal_applied, session_start, last_activity)
		VALUES ($1, 0, 0, NOW(), NOW())
		RETURNING id, current_boss_id, total_damage_dealt, total_heal_applied, session_start, last_activity`,
		firstBossID,
	).Scan(&sess.ID, &sess.CurrentBossID, &sess.TotalDamageDealt, &sess.TotalHealApplied,
		&sess.SessionStart, &sess.LastActivity)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return &sess, nil
}

func (s *PostgresStore) UpdateSession(ctx context.Context, session *state.GameSession) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE game_sessions
		SET current_boss_id = $2, total_damage_dealt = $3, total_heal_applied = $4, last_activity = $5
		WHERE id = $1`,
		session.ID, session.CurrentBossID, session.TotalDamageDealt, session.TotalHealApplied,
		session.LastActivity,
	)
	if err != nil {
		return fmt.Errorf("update session %d: %w", session.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetGameStats(ctx context.Context) (*state.GameStats, error) {
	var stats state.GameStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE tx_type IN ('buy', 'create')),
			COUNT(*) FILTER (WHERE tx_type = 'sell'),
			COALESCE(SUM(sol_amount) FILTER (WHERE tx_type IN ('buy', 'create')), 0),
			COALESCE(SUM(sol_amount) FILTER (WHERE tx_type = 'sell'), 0),
			COALESCE(SUM(damage_dealt), 0),
			COALESCE(SUM(heal_applied), 0)
		FROM trades`,
	).Scan(&stats.TotalBuyTrades, &stats.TotalSellTrades, &stats.TotalSolFromBuys,
		&stats.TotalSolFromSells, &stats.TotalDamageDealt, &stats.TotalHealApplied)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bosses WHERE is_defeated = TRUE`,
	).Scan(&stats.BossesDefeated)
	if err != nil {
		return nil, fmt.Errorf("query defeated count: %w", err)
	}
	return &stats, nil
}

func (s *PostgresStore) TopDamageDealers(ctx context.Context, bossID, limit int) ([]*state.DamageDealer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT trader_address,
		       COALESCE(SUM(damage_dealt), 0),
		       COALESCE(SUM(heal_applied), 0),
		       COUNT(*) FILTER (WHERE tx_type IN ('buy', 'create')),
		       COUNT(*) FILTER (WHERE tx_type = 'sell')
		FROM trades
		WHERE boss_id = $1 AND trader_address IS NOT NULL
		GROUP BY trader_address
		ORDER BY SUM(damage_dealt) - SUM(heal_applied) DESC
		LIMIT $2`,
		bossID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query damage dealers: %w", err)
	}
	defer rows.Close()

	var dealers []*state.DamageDealer
	for rows.Next() {
		var d state.DamageDealer
		if err := rows.Scan(&d.Address, &d.TotalDamage, &d.TotalHeal, &d.BuyCount, &d.SellCount); err != nil {
			return nil, fmt.Errorf("scan damage dealer: %w", err)
		}
		d.NetDamage = d.TotalDamage - d.TotalHeal
		dealers = append(dealers, &d)
	}
	return dealers, rows.Err()
}

func (s *PostgresStore) ResetAll(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("reset: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM trades`); err != nil {
		return fmt.Errorf("reset: clear trades: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE bosses
		SET current_health = max_health, is_defeated = FALSE, defeated_at = NULL, updated_at = NOW()`,
	); err != nil {
		return fmt.Errorf("reset: restore bosses: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE game_sessions
		SET current_boss_id = (SELECT id FROM bosses ORDER BY id ASC LIMIT 1),
		    total_damage_dealt = 0, total_heal_applied = 0, last_activity = NOW()`,
	); err != nil {
		return fmt.Errorf("reset: reset session: %w", err)
	}

	return tx.Commit()
}
