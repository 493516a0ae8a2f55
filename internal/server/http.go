package server

import (
	"BossRaid/internal/core"
	"BossRaid/internal/holders"
	"BossRaid/internal/observability"
	"BossRaid/internal/persistence"
	"BossRaid/internal/query"
	"BossRaid/internal/state"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// Server is the JSON API surface. Reads are served from the store via
// the query service; writes go through the engine so the single-writer
// invariant holds no matter how many HTTP clients hit us.
type Server struct {
	engine  *core.Engine
	queries *query.Service
	store   persistence.Store
	holders *holders.Client
	hub     *Hub
	auth    AuthConfig
	metrics *observability.Metrics
	log     zerolog.Logger
}

func New(
	engine *core.Engine,
	queries *query.Service,
	store persistence.Store,
	holdersClient *holders.Client,
	hub *Hub,
	auth AuthConfig,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Server {
	return &Server{
		engine:  engine,
		queries: queries,
		store:   store,
		holders: holdersClient,
		hub:     hub,
		auth:    auth,
		metrics: metrics,
		log:     logger,
	}
}

// Handler builds the routed, middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/bosses", s.handleGetBosses)
	mux.HandleFunc("POST /api/bosses", s.handlePostBosses)
	mux.HandleFunc("GET /api/trades", s.handleGetTrades)
	mux.HandleFunc("POST /api/trades", s.handlePostTrades)
	mux.HandleFunc("GET /api/game", s.handleGetGame)
	mux.HandleFunc("POST /api/game", s.handlePostGame)
	mux.HandleFunc("GET /api/damage", s.handleGetDamage)
	mux.HandleFunc("GET /api/holders", s.handleGetHolders)
	mux.HandleFunc("GET /api/populate-trader", s.handlePopulateTrader)
	mux.HandleFunc("GET /ws", s.hub.ServeWS)

	return s.requestLogger(authMiddleware(s.auth, mux))
}

func (s *Server) handleGetBosses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	switch r.URL.Query().Get("action") {
	case "current":
		current, _, _ := s.engine.Snapshot()
		if current == nil {
			writeError(w, http.StatusNotFound, "no boss registered")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"boss": current})
		return

	case "all":
		bosses, err := s.queries.GetRoster(ctx)
		if err != nil {
			s.internalError(w, err, "load roster")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"bosses": bosses})
		return
	}

	if idStr := r.URL.Query().Get("id"); idStr != "" {
		id, err := strconv.Atoi(idStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid boss id")
			return
		}
		boss, err := s.store.GetBossByID(ctx, id)
		if errors.Is(err, persistence.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Boss not found")
			return
		}
		if err != nil {
			s.internalError(w, err, "load boss")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"boss": boss})
		return
	}

	writeError(w, http.StatusBadRequest, "Invalid action")
}

type updateHealthRequest struct {
	Action        string  `json:"action"`
	BossID        int     `json:"bossId"`
	CurrentHealth float64 `json:"currentHealth"`
	IsDefeated    bool    `json:"isDefeated"`
	Signature     string  `json:"signature"`
	TxType        string  `json:"txType"`
}

// handlePostBosses applies a manual health update through the engine.
// The request names a target health; the delta is computed against the
// engine's live snapshot, never the store, which trails the engine by
// the persist queue.
func (s *Server) handlePostBosses(w http.ResponseWriter, r *http.Request) {
	var req updateHealthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON in request body")
		return
	}

	if req.Action != "updateHealth" || req.BossID == 0 {
		writeError(w, http.StatusBadRequest, "Invalid action or parameters")
		return
	}
	if req.Signature == "" {
		writeError(w, http.StatusBadRequest, "Trade signature required")
		return
	}

	_, bosses, _ := s.engine.Snapshot()
	var boss *state.Boss
	for _, b := range bosses {
		if b.ID == req.BossID {
			boss = b
			break
		}
	}
	if boss == nil {
		writeError(w, http.StatusNotFound, "Boss not found")
		return
	}

	if boss.IsDefeated && req.CurrentHealth > boss.CurrentHealth && req.TxType == "sell" {
		writeError(w, http.StatusBadRequest, "Boss is already defeated and cannot be healed")
		return
	}

	var damage, heal float64
	delta := boss.CurrentHealth - req.CurrentHealth
	if delta > 0 {
		damage = delta
	} else {
		heal = -delta
	}

	updated, err := s.engine.ApplyAdjustment(r.Context(), req.BossID, req.Signature, damage, heal)
	switch {
	case errors.Is(err, core.ErrDuplicateTrade):
		writeError(w, http.StatusConflict, "Signature already applied")
		return
	case errors.Is(err, core.ErrUnknownBoss):
		writeError(w, http.StatusNotFound, "Boss not found")
		return
	case errors.Is(err, core.ErrBossDefeated):
		writeError(w, http.StatusBadRequest, "Boss is already defeated and cannot be healed")
		return
	case err != nil:
		s.internalError(w, err, "apply adjustment")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"bossDefeated": updated.IsDefeated,
	})
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	bossIDStr := r.URL.Query().Get("bossId")
	if bossIDStr == "" {
		writeError(w, http.StatusBadRequest, "bossId is required")
		return
	}
	bossID, err := strconv.Atoi(bossIDStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid bossId")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	trades, err := s.queries.GetRecentTrades(r.Context(), bossID, limit)
	if err != nil {
		s.internalError(w, err, "load trades")
		return
	}
	if trades == nil {
		trades = []*state.TradeRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"trades": trades})
}

type postTradeRequest struct {
	BossID      int     `json:"bossId"`
	Signature   string  `json:"signature"`
	Mint        string  `json:"mint"`
	SolAmount   float64 `json:"solAmount"`
	TokenAmount float64 `json:"tokenAmount"`
	TxType      string  `json:"txType"`
	DamageDealt float64 `json:"damageDealt"`
	HealApplied float64 `json:"healApplied"`
	Timestamp   int64   `json:"timestamp"`
}

// handlePostTrades records an externally computed trade. Kept for
// compatibility with clients that log their own trades; the insert is
// idempotent on signature so replays are harmless. Boss health is not
// touched here, that authority stays with the engine.
func (s *Server) handlePostTrades(w http.ResponseWriter, r *http.Request) {
	var req postTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON in request body")
		return
	}
	if req.BossID == 0 || req.Signature == "" || req.Mint == "" || req.TokenAmount == 0 ||
		req.TxType == "" || req.Timestamp == 0 {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	trade := &state.TradeRecord{
		BossID:      req.BossID,
		Signature:   req.Signature,
		Mint:        req.Mint,
		SolAmount:   req.SolAmount,
		TokenAmount: req.TokenAmount,
		TxType:      req.TxType,
		DamageDealt: req.DamageDealt,
		HealApplied: req.HealApplied,
		Timestamp:   time.UnixMilli(req.Timestamp),
	}
	if err := s.store.SaveTrade(r.Context(), trade); err != nil {
		s.internalError(w, err, "save trade")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	switch r.URL.Query().Get("action") {
	case "session":
		_, _, session := s.engine.Snapshot()
		writeJSON(w, http.StatusOK, map[string]interface{}{"session": session})

	case "stats":
		stats, err := s.queries.GetStats(ctx)
		if err != nil {
			s.internalError(w, err, "load stats")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"stats": stats})

	case "view", "":
		view, err := s.queries.GetGameView(ctx)
		if err != nil {
			s.internalError(w, err, "load game view")
			return
		}
		// Overlay live health from the engine; the store may trail it.
		if current, _, session := s.engine.Snapshot(); current != nil {
			view.CurrentBoss = current
			view.Session = &session
		}
		writeJSON(w, http.StatusOK, view)

	default:
		writeError(w, http.StatusBadRequest, "Invalid action")
	}
}

type postGameRequest struct {
	Action string `json:"action"`
}

func (s *Server) handlePostGame(w http.ResponseWriter, r *http.Request) {
	var req postGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON in request body")
		return
	}

	switch req.Action {
	case "reset":
		if err := s.store.ResetAll(r.Context()); err != nil {
			s.internalError(w, err, "reset store")
			return
		}
		if err := s.engine.Reset(r.Context()); err != nil {
			s.internalError(w, err, "reset engine")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})

	default:
		writeError(w, http.StatusBadRequest, "Invalid action or parameters")
	}
}

func (s *Server) handleGetDamage(w http.ResponseWriter, r *http.Request) {
	bossIDStr := r.URL.Query().Get("bossId")
	if bossIDStr == "" {
		writeError(w, http.StatusBadRequest, "bossId is required")
		return
	}
	bossID, err := strconv.Atoi(bossIDStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid bossId")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	dealers, err := s.queries.GetLeaderboard(r.Context(), bossID, limit)
	if err != nil {
		s.internalError(w, err, "load leaderboard")
		return
	}
	if dealers == nil {
		dealers = []query.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"dealers": dealers})
}

type holderView struct {
	Address         string  `json:"address"`
	ShortAddress    string  `json:"shortAddress"`
	Rank            int     `json:"rank"`
	Amount          float64 `json:"amount"`
	UIAmount        float64 `json:"uiAmount"`
	FormattedAmount string  `json:"formattedAmount"`
	Percentage      float64 `json:"percentage"`
}

func (s *Server) handleGetHolders(w http.ResponseWriter, r *http.Request) {
	if s.holders == nil {
		writeError(w, http.StatusServiceUnavailable, "holders lookup not configured")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 50
	}
	mint := r.URL.Query().Get("mint")
	if mint == "" {
		writeError(w, http.StatusBadRequest, "mint is required")
		return
	}

	list, err := s.holders.TopHolders(r.Context(), mint, limit)
	if errors.Is(err, holders.ErrRateLimited) {
		writeError(w, http.StatusTooManyRequests, "RPC rate limit hit, try again shortly")
		return
	}
	if err != nil {
		s.internalError(w, err, "fetch holders")
		return
	}

	var total float64
	for _, h := range list {
		total += h.Amount
	}

	views := make([]holderView, 0, len(list))
	for i, h := range list {
		pct := 0.0
		if total > 0 {
			pct = 100 * h.Amount / total
		}
		views = append(views, holderView{
			Address:         h.Address,
			ShortAddress:    query.ShortAddress(h.Address),
			Rank:            i + 1,
			Amount:          h.Amount,
			UIAmount:        h.UIAmount,
			FormattedAmount: query.FormatAmount(h.UIAmount),
			Percentage:      pct,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"holders": views})
}

// handlePopulateTrader backfills the trader wallet on a stored trade by
// looking up the transaction's fee payer on chain.
func (s *Server) handlePopulateTrader(w http.ResponseWriter, r *http.Request) {
	if s.holders == nil {
		writeError(w, http.StatusServiceUnavailable, "rpc lookup not configured")
		return
	}

	signature := r.URL.Query().Get("signature")
	if signature == "" {
		writeError(w, http.StatusBadRequest, "signature is required")
		return
	}

	trader, err := s.holders.TransactionSigner(r.Context(), signature)
	if err != nil {
		writeError(w, http.StatusNotFound, "Transaction not found")
		return
	}
	if err := s.store.SetTraderAddress(r.Context(), signature, trader); err != nil {
		s.internalError(w, err, "set trader address")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"traderAddress": trader,
	})
}

func (s *Server) internalError(w http.ResponseWriter, err error, what string) {
	s.log.Error().Err(err).Msg(what)
	writeError(w, http.StatusInternalServerError, "Internal server error")
}
