package query

import (
	"BossRaid/internal/persistence"
	"BossRaid/internal/state"
	"context"
	"fmt"
)

// Service composes read-model responses for the HTTP API from the
// Store. Live health comes from the engine snapshot at the server
// layer; everything here reads persisted state, so responses can trail
// the engine by a persist-queue flush.
type Service struct {
	store persistence.Store
}

func NewService(store persistence.Store) *Service {
	return &Service{store: store}
}

// GameView is the payload of GET /api/game.
type GameView struct {
	CurrentBoss     *state.Boss        `json:"currentBoss"`
	Session         *state.GameSession `json:"session"`
	ProgressPercent float64            `json:"progressPercent"`
	BossesDefeated  int                `json:"bossesDefeated"`
	BossesTotal     int                `json:"bossesTotal"`
}

// LeaderboardEntry is one formatted row of the damage leaderboard.
type LeaderboardEntry struct {
	Rank         int     `json:"rank"`
	RankLabel    string  `json:"rankLabel"`
	Address      string  `json:"address"`
	ShortAddress string  `json:"shortAddress"`
	NetDamage    float64 `json:"netDamage"`
	Formatted    string  `json:"formatted"`
	BuyCount     int     `json:"buyCount"`
	SellCount    int     `json:"sellCount"`
}

// GetGameView assembles the current boss, session, and roster progress.
func (s *Service) GetGameView(ctx context.Context) (*GameView, error) {
	session, err := s.store.GetOrCreateSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	boss, err := s.store.GetCurrentBoss(ctx)
	if err != nil {
		return nil, fmt.Errorf("load current boss: %w", err)
	}
	bosses, err := s.store.GetAllBosses(ctx)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}

	defeated := 0
	for _, b := range bosses {
		if b.IsDefeated {
			defeated++
		}
	}

	progress := 0.0
	if boss.MaxHealth > 0 {
		progress = 100 * (boss.MaxHealth - boss.CurrentHealth) / boss.MaxHealth
	}

	return &GameView{
		CurrentBoss:     boss,
		Session:         session,
		ProgressPercent: progress,
		BossesDefeated:  defeated,
		BossesTotal:     len(bosses),
	}, nil
}

// GetStats returns aggregate trade statistics.
func (s *Service) GetStats(ctx context.Context) (*state.GameStats, error) {
	return s.store.GetGameStats(ctx)
}

// GetRoster returns all bosses in ladder order.
func (s *Service) GetRoster(ctx context.Context) ([]*state.Boss, error) {
	return s.store.GetAllBosses(ctx)
}

// GetRecentTrades returns the latest trades for a boss, newest first.
func (s *Service) GetRecentTrades(ctx context.Context, bossID, limit int) ([]*state.TradeRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.GetTradesForBoss(ctx, bossID, limit)
}

// GetLeaderboard ranks damage dealers for a boss by net damage.
func (s *Service) GetLeaderboard(ctx context.Context, bossID, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	dealers, err := s.store.TopDamageDealers(ctx, bossID, limit)
	if err != nil {
		return nil, fmt.Errorf("load damage dealers: %w", err)
	}

	entries := make([]LeaderboardEntry, 0, len(dealers))
	for i, d := range dealers {
		rank := i + 1
		entries = append(entries, LeaderboardEntry{
			Rank:         rank,
			RankLabel:    RankLabel(rank),
			Address:      d.Address,
			ShortAddress: ShortAddress(d.Address),
			NetDamage:    d.NetDamage,
			Formatted:    FormatAmount(d.NetDamage),
			BuyCount:     d.BuyCount,
			SellCount:    d.SellCount,
		})
	}
	return entries, nil
}
