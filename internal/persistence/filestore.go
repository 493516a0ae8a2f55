package persistence

import (
	"BossRaid/internal/state"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// maxStoredTrades bounds the flat-file trade log. Older trades are
// trimmed on save; aggregates computed from the file reflect only the
// retained window.
const maxStoredTrades = 1000

// fileData is the on-disk layout of the flat-file backend.
type fileData struct {
	Bosses      []*state.Boss        `json:"bosses"`
	Trades      []*state.TradeRecord `json:"trades"`
	Session     *state.GameSession   `json:"session,omitempty"`
	NextBossID  int                  `json:"nextBossId"`
	NextTradeID int64                `json:"nextTradeId"`
}

// FileStore is the flat-file Store for local play and tests. The whole
// state lives in one JSON file; every write rewrites it via a temp file
// and rename so a crash never leaves a torn file.
type FileStore struct {
	mu   sync.Mutex
	path string
	data fileData
}

// OpenFileStore loads the file, creating an empty store if it does not
// exist yet.
func OpenFileStore(path string) (*FileStore, error) {
	fs := &FileStore{path: path}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		fs.data = fileData{NextBossID: 1, NextTradeID: 1}
		return fs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read store file: %w", err)
	}
	if err := json.Unmarshal(raw, &fs.data); err != nil {
		return nil, fmt.Errorf("parse store file %s: %w", path, err)
	}
	if fs.data.NextBossID == 0 {
		fs.data.NextBossID = len(fs.data.Bosses) + 1
	}
	if fs.data.NextTradeID == 0 {
		fs.data.NextTradeID = int64(len(fs.data.Trades)) + 1
	}
	return fs, nil
}

func (fs *FileStore) Close() error {
	return nil
}

// saveLocked writes the file atomically. Caller holds fs.mu.
func (fs *FileStore) saveLocked() error {
	if len(fs.data.Trades) > maxStoredTrades {
		fs.data.Trades = fs.data.Trades[len(fs.data.Trades)-maxStoredTrades:]
	}

	raw, err := json.MarshalIndent(&fs.data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal store: %w", err)
	}

	tmp := fs.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(fs.path), 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write temp store: %w", err)
	}
	if err := os.Rename(tmp, fs.path); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}
	return nil
}

func (fs *FileStore) GetAllBosses(ctx context.Context) ([]*state.Boss, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	bosses := make([]*state.Boss, len(fs.data.Bosses))
	for i, b := range fs.data.Bosses {
		bosses[i] = b.Clone()
	}
	sort.Slice(bosses, func(i, j int) bool { return bosses[i].ID < bosses[j].ID })
	return bosses, nil
}

func (fs *FileStore) GetBossByID(ctx context.Context, id int) (*state.Boss, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	b := fs.findBossLocked(id)
	if b == nil {
		return nil, ErrNotFound
	}
	return b.Clone(), nil
}

func (fs *FileStore) findBossLocked(id int) *state.Boss {
	for _, b := range fs.data.Bosses {
		if b.ID == id {
			return b
		}
	}
	return nil
}

func (fs *FileStore) GetCurrentBoss(ctx context.Context) (*state.Boss, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.data.Session != nil {
		if b := fs.findBossLocked(fs.data.Session.CurrentBossID); b != nil {
			return b.Clone(), nil
		}
	}
	for _, b := range fs.data.Bosses {
		if !b.IsDefeated {
			return b.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (fs *FileStore) RegisterBoss(ctx context.Context, seed state.BossSeed) (*state.Boss, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	now := time.Now()
	for _, b := range fs.data.Bosses {
		if b.BossID == seed.BossID {
			// Update static fields, keep health and defeat state.
			b.Name = seed.Name
			b.MaxHealth = seed.MaxHealth
			b.BuyWeight = seed.BuyWeight
			b.SellWeight = seed.SellWeight
			b.Sprites = seed.Sprites
			b.Twitter = seed.Twitter
			b.OwnerWallet = seed.OwnerWallet
			b.UpdatedAt = now
			if err := fs.saveLocked(); err != nil {
				return nil, err
			}
			return b.Clone(), nil
		}
	}

	boss := &state.Boss{
		ID:            fs.data.NextBossID,
		BossID:        seed.BossID,
		Name:          seed.Name,
		MaxHealth:     seed.MaxHealth,
		CurrentHealth: seed.MaxHealth,
		BuyWeight:     seed.BuyWeight,
		SellWeight:    seed.SellWeight,
		Sprites:       seed.Sprites,
		Twitter:       seed.Twitter,
		OwnerWallet:   seed.OwnerWallet,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	fs.data.NextBossID++
	fs.data.Bosses = append(fs.data.Bosses, boss)

	if err := fs.saveLocked(); err != nil {
		return nil, err
	}
	return boss.Clone(), nil
}

func (fs *FileStore) UpdateBossHealth(ctx context.Context, bossID int, health float64, defeated bool, defeatedAt *time.Time) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	b := fs.findBossLocked(bossID)
	if b == nil {
		return ErrNotFound
	}
	if health < 0 || health > b.MaxHealth {
		return fmt.Errorf("%w: %.2f not in [0, %.2f]", ErrHealthOutOfRange, health, b.MaxHealth)
	}

	b.CurrentHealth = health
	b.IsDefeated = defeated
	b.DefeatedAt = defeatedAt
	b.UpdatedAt = time.Now()
	return fs.saveLocked()
}

func (fs *FileStore) SaveTrade(ctx context.Context, trade *state.TradeRecord) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	for _, t := range fs.data.Trades {
		if t.Signature == trade.Signature {
			return nil // idempotent on signature
		}
	}

	stored := *trade
	stored.ID = fs.data.NextTradeID
	stored.CreatedAt = time.Now()
	fs.data.NextTradeID++
	fs.data.Trades = append(fs.data.Trades, &stored)
	return fs.saveLocked()
}

func (fs *FileStore) GetTradesForBoss(ctx context.Context, bossID, limit int) ([]*state.TradeRecord, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var trades []*state.TradeRecord
	for _, t := range fs.data.Trades {
		if t.BossID == bossID {
			c := *t
			trades = append(trades, &c)
		}
	}
	sort.Slice(trades, func(i, j int) bool { return trades[i].Timestamp.After(trades[j].Timestamp) })
	if limit > 0 && len(trades) > limit {
		trades = trades[:limit]
	}
	return trades, nil
}

func (fs *FileStore) SetTraderAddress(ctx context.Context, signature, address string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	for _, t := range fs.data.Trades {
		if t.Signature == signature && t.TraderAddress == "" {
			t.TraderAddress = address
			return fs.saveLocked()
		}
	}
	return nil
}

func (fs *FileStore) GetOrCreateSession(ctx context.Context) (*state.GameSession, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.data.Session != nil {
		sess := *fs.data.Session
		return &sess, nil
	}

	var firstBossID int
	for _, b := range fs.data.Bosses {
		if !b.IsDefeated {
			firstBossID = b.ID
			break
		}
	}
	if firstBossID == 0 {
		return nil, fmt.Errorf("create session: no bosses registered")
	}

	now := time.Now()
	fs.data.Session = &state.GameSession{
		ID:            1,
		CurrentBossID: firstBossID,
		SessionStart:  now,
		LastActivity:  now,
	}
	if err := fs.saveLocked(); err != nil {
		return nil, err
	}
	sess := *fs.data.Session
	return &sess, nil
}

func (fs *FileStore) UpdateSession(ctx context.Context, session *state.GameSession) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	sess := *session
	fs.data.Session = &sess
	return fs.saveLocked()
}

func (fs *FileStore) GetGameStats(ctx context.Context) (*state.GameStats, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var stats state.GameStats
	for _, t := range fs.data.Trades {
		switch t.TxType {
		case "sell":
			stats.TotalSellTrades++
			stats.TotalSolFromSells += t.SolAmount
		case "buy", "create":
			stats.TotalBuyTrades++
			stats.TotalSolFromBuys += t.SolAmount
		}
		stats.TotalDamageDealt += t.DamageDealt
		stats.TotalHealApplied += t.HealApplied
	}
	for _, b := range fs.data.Bosses {
		if b.IsDefeated {
			stats.BossesDefeated++
		}
	}
	return &stats, nil
}

func (fs *FileStore) TopDamageDealers(ctx context.Context, bossID, limit int) ([]*state.DamageDealer, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	byAddr := make(map[string]*state.DamageDealer)
	for _, t := range fs.data.Trades {
		if t.BossID != bossID || t.TraderAddress == "" {
			continue
		}
		d, ok := byAddr[t.TraderAddress]
		if !ok {
			d = &state.DamageDealer{Address: t.TraderAddress}
			byAddr[t.TraderAddress] = d
		}
		d.TotalDamage += t.DamageDealt
		d.TotalHeal += t.HealApplied
		switch t.TxType {
		case "sell":
			d.SellCount++
		case "buy", "create":
			d.BuyCount++
		}
	}

	dealers := make([]*state.DamageDealer, 0, len(byAddr))
	for _, d := range byAddr {
		d.NetDamage = d.TotalDamage - d.TotalHeal
		dealers = append(dealers, d)
	}
	sort.Slice(dealers, func(i, j int) bool { return dealers[i].NetDamage > dealers[j].NetDamage })
	if limit > 0 && len(dealers) > limit {
		dealers = dealers[:limit]
	}
	return dealers, nil
}

func (fs *FileStore) ResetAll(ctx context.Context) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	now := time.Now()
	fs.data.Trades = nil
	for _, b := range fs.data.Bosses {
		b.CurrentHealth = b.MaxHealth
		b.IsDefeated = false
		b.DefeatedAt = nil
		b.UpdatedAt = now
	}
	if fs.data.Session != nil && len(fs.data.Bosses) > 0 {
		fs.data.Session.CurrentBossID = fs.data.Bosses[0].ID
		fs.data.Session.TotalDamageDealt = 0
		fs.data.Session.TotalHealApplied = 0
		fs.data.Session.LastActivity = now
	}
	return fs.saveLocked()
}
