package core

import (
	"BossRaid/internal/event"
	"BossRaid/internal/observability"
	"BossRaid/internal/state"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DamageScale converts SOL volume into hit points. Both damage and heal
// use the same scale; the per-boss weights tune the asymmetry.
const DamageScale = 200.0

// Output is the engine's unit of emission to the persistence worker.
// Boss and Session are post-apply clones; the worker never sees live
// engine state.
type Output struct {
	Trade   *state.TradeRecord
	Boss    *state.Boss
	Session *state.GameSession
}

// BroadcastKind classifies events pushed to websocket clients.
const (
	BroadcastTrade   = "trade"
	BroadcastDefeat  = "defeat"
	BroadcastAdvance = "advance"
)

// BroadcastEvent is the payload fanned out to live spectators. Dropped
// silently if the broadcast channel is full; spectators resync via the
// HTTP API.
type BroadcastEvent struct {
	Kind    string              `json:"kind"`
	Trade   *state.TradeRecord  `json:"trade,omitempty"`
	Boss    *state.Boss         `json:"boss,omitempty"`
	Session *state.GameSession  `json:"session,omitempty"`
	State   state.BossState     `json:"bossState"`
}

// Rejection reasons for metrics.
const (
	rejectDuplicate    = "duplicate"
	rejectBossDefeated = "boss_defeated"
	rejectNoBoss       = "no_boss"
)

// Engine is the single-threaded game-state processor. All health and
// session mutation happens on the Run goroutine; HTTP handlers reach it
// through commands with reply channels, never by touching state directly.
type Engine struct {
	damageScale  float64
	advanceDelay time.Duration

	// mu guards reads from Snapshot callers. Writes happen only on the
	// Run goroutine, so the engine itself never contends with itself.
	mu      sync.RWMutex
	bosses  []*state.Boss // ascending ID order
	session *state.GameSession

	dedup         *DedupCache
	tradeChan     <-chan *event.TradeEvent
	cmdChan       chan command
	persistChan   chan<- Output
	broadcastChan chan<- BroadcastEvent

	metrics *observability.Metrics
	log     zerolog.Logger

	ctx context.Context // set by Run, used by advance timers
}

// EngineConfig holds the engine's tunables.
type EngineConfig struct {
	DamageScale  float64
	AdvanceDelay time.Duration // pause between defeat and the next boss
	DedupCap     int
	DedupRetain  int
}

type command interface{}

type advanceCmd struct {
	bossID int // advance only if this boss is still current
}

type adjustCmd struct {
	bossID    int
	signature string
	damage    float64
	heal      float64
	reply     chan adjustResult
}

type adjustResult struct {
	boss *state.Boss
	err  error
}

type resetCmd struct {
	reply chan struct{}
}

// ErrUnknownBoss is returned for adjustments against an ID that was
// never registered.
var ErrUnknownBoss = fmt.Errorf("unknown boss")

// ErrBossDefeated is returned for heals against a defeated boss.
var ErrBossDefeated = fmt.Errorf("boss already defeated")

// ErrDuplicateTrade is returned when a signature was already applied.
var ErrDuplicateTrade = fmt.Errorf("duplicate signature")

func NewEngine(
	cfg EngineConfig,
	bosses []*state.Boss,
	session *state.GameSession,
	tradeChan <-chan *event.TradeEvent,
	persistChan chan<- Output,
	broadcastChan chan<- BroadcastEvent,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Engine {
	scale := cfg.DamageScale
	if scale == 0 {
		scale = DamageScale
	}
	return &Engine{
		damageScale:   scale,
		advanceDelay:  cfg.AdvanceDelay,
		bosses:        bosses,
		session:       session,
		dedup:         NewDedupCache(cfg.DedupCap, cfg.DedupRetain),
		tradeChan:     tradeChan,
		cmdChan:       make(chan command, 16),
		persistChan:   persistChan,
		broadcastChan: broadcastChan,
		metrics:       metrics,
		log:           logger,
	}
}

// Run processes trades and commands until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.ctx = ctx
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case evt, ok := <-e.tradeChan:
			if !ok {
				return nil
			}
			e.processTrade(evt)

		case cmd := <-e.cmdChan:
			switch c := cmd.(type) {
			case advanceCmd:
				e.advance(c.bossID)
			case adjustCmd:
				c.reply <- e.applyAdjustment(c)
			case resetCmd:
				e.reset()
				c.reply <- struct{}{}
			}
		}
	}
}

// Snapshot returns clones of the current boss, the full roster, and the
// session. Safe to call from any goroutine.
func (e *Engine) Snapshot() (current *state.Boss, bosses []*state.Boss, session state.GameSession) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	bosses = make([]*state.Boss, len(e.bosses))
	for i, b := range e.bosses {
		bosses[i] = b.Clone()
	}
	current = e.currentBossLocked().Clone()
	session = *e.session
	return current, bosses, session
}

// ApplyAdjustment applies a manual damage or heal to a boss through the
// engine goroutine. Used by the write API; subject to the same dedup as
// feed trades.
func (e *Engine) ApplyAdjustment(ctx context.Context, bossID int, signature string, damage, heal float64) (*state.Boss, error) {
	cmd := adjustCmd{
		bossID:    bossID,
		signature: signature,
		damage:    damage,
		heal:      heal,
		reply:     make(chan adjustResult, 1),
	}
	select {
	case e.cmdChan <- cmd:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case res := <-cmd.reply:
		return res.boss, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// currentBossLocked resolves the session's current boss. Falls back to
// the first undefeated boss if the session points at a stale ID.
func (e *Engine) currentBossLocked() *state.Boss {
	for _, b := range e.bosses {
		if b.ID == e.session.CurrentBossID {
			return b
		}
	}
	for _, b := range e.bosses {
		if !b.IsDefeated {
			return b
		}
	}
	return nil
}

func (e *Engine) processTrade(evt *event.TradeEvent) {
	start := time.Now()
	txType := string(evt.TxType)

	if e.dedup.Seen(evt.Signature) {
		e.reject(txType, rejectDuplicate)
		return
	}
	e.dedup.Record(evt.Signature)
	if e.metrics != nil {
		e.metrics.DedupSize.Set(float64(e.dedup.Len()))
	}

	e.mu.Lock()
	boss := e.currentBossLocked()
	if boss == nil {
		e.mu.Unlock()
		e.reject(txType, rejectNoBoss)
		return
	}
	if boss.IsDefeated {
		e.mu.Unlock()
		e.reject(txType, rejectBossDefeated)
		return
	}

	var damage, heal float64
	bossState := state.BossStateIdle

	switch {
	case boss.OwnerWallet != "" && evt.TraderPublicKey == boss.OwnerWallet:
		// The boss's own wallet trading its token ends the fight.
		damage = boss.CurrentHealth
		boss.CurrentHealth = 0
		bossState = state.BossStateHitting
		e.log.Warn().Str("wallet", evt.TraderPublicKey).Int("boss_id", boss.ID).
			Msg("owner wallet trade: instant kill")

	case evt.IsBuy():
		damage = evt.SolAmount * e.damageScale * boss.BuyWeight
		boss.CurrentHealth = boss.CurrentHealth - damage
		if boss.CurrentHealth < 0 {
			boss.CurrentHealth = 0
		}
		bossState = state.BossStateHitting

	default:
		heal = evt.SolAmount * e.damageScale * boss.SellWeight
		boss.CurrentHealth = boss.CurrentHealth + heal
		if boss.CurrentHealth > boss.MaxHealth {
			boss.CurrentHealth = boss.MaxHealth
		}
		bossState = state.BossStateHealing
	}

	boss.UpdatedAt = evt.Timestamp
	defeated := false
	if boss.CurrentHealth <= 0 && !boss.IsDefeated {
		boss.IsDefeated = true
		ts := evt.Timestamp
		boss.DefeatedAt = &ts
		defeated = true
		bossState = state.BossStateDead
	}

	e.session.TotalDamageDealt += damage
	e.session.TotalHealApplied += heal
	e.session.LastActivity = evt.Timestamp

	record := &state.TradeRecord{
		BossID:        boss.ID,
		Signature:     evt.Signature,
		Mint:          evt.Mint,
		SolAmount:     evt.SolAmount,
		TokenAmount:   evt.TokenAmount,
		TxType:        txType,
		DamageDealt:   damage,
		HealApplied:   heal,
		TraderAddress: evt.TraderPublicKey,
		Timestamp:     evt.Timestamp,
	}

	bossClone := boss.Clone()
	sessionClone := *e.session
	e.mu.Unlock()

	e.emit(Output{Trade: record, Boss: bossClone, Session: &sessionClone})

	kind := BroadcastTrade
	if defeated {
		kind = BroadcastDefeat
	}
	e.broadcast(BroadcastEvent{
		Kind:    kind,
		Trade:   record,
		Boss:    bossClone,
		Session: &sessionClone,
		State:   bossState,
	})

	if defeated {
		e.log.Info().Int("boss_id", boss.ID).Str("boss", bossClone.Name).
			Str("signature", evt.Signature).Msg("boss defeated")
		if e.metrics != nil {
			e.metrics.BossesDefeated.Inc()
		}
		e.scheduleAdvance(bossClone.ID)
	}

	if e.metrics != nil {
		e.metrics.TradesApplied.WithLabelValues(txType).Inc()
		e.metrics.TradeApplyDuration.WithLabelValues(txType).Observe(time.Since(start).Seconds())
		e.metrics.BossHealth.Set(bossClone.CurrentHealth)
	}
}

// applyAdjustment handles manual write-API damage and heals. These go
// through the same dedup and clamping as feed trades.
func (e *Engine) applyAdjustment(cmd adjustCmd) adjustResult {
	if e.dedup.Seen(cmd.signature) {
		return adjustResult{err: ErrDuplicateTrade}
	}

	e.mu.Lock()
	var boss *state.Boss
	for _, b := range e.bosses {
		if b.ID == cmd.bossID {
			boss = b
			break
		}
	}
	if boss == nil {
		e.mu.Unlock()
		return adjustResult{err: ErrUnknownBoss}
	}
	if boss.IsDefeated && cmd.heal > 0 {
		e.mu.Unlock()
		return adjustResult{err: ErrBossDefeated}
	}

	e.dedup.Record(cmd.signature)

	now := time.Now()
	boss.CurrentHealth = boss.CurrentHealth - cmd.damage + cmd.heal
	if boss.CurrentHealth < 0 {
		boss.CurrentHealth = 0
	}
	if boss.CurrentHealth > boss.MaxHealth {
		boss.CurrentHealth = boss.MaxHealth
	}
	boss.UpdatedAt = now

	defeated := false
	if boss.CurrentHealth <= 0 && !boss.IsDefeated {
		boss.IsDefeated = true
		ts := now
		boss.DefeatedAt = &ts
		defeated = true
	}

	e.session.TotalDamageDealt += cmd.damage
	e.session.TotalHealApplied += cmd.heal
	e.session.LastActivity = now

	record := &state.TradeRecord{
		BossID:      boss.ID,
		Signature:   cmd.signature,
		TxType:      "manual",
		DamageDealt: cmd.damage,
		HealApplied: cmd.heal,
		Timestamp:   now,
	}
	bossClone := boss.Clone()
	sessionClone := *e.session
	e.mu.Unlock()

	e.emit(Output{Trade: record, Boss: bossClone, Session: &sessionClone})

	kind := BroadcastTrade
	bossState := state.BossStateHitting
	if cmd.heal > 0 {
		bossState = state.BossStateHealing
	}
	if defeated {
		kind = BroadcastDefeat
		bossState = state.BossStateDead
		e.scheduleAdvance(bossClone.ID)
	}
	e.broadcast(BroadcastEvent{
		Kind:    kind,
		Trade:   record,
		Boss:    bossClone,
		Session: &sessionClone,
		State:   bossState,
	})

	return adjustResult{boss: bossClone}
}

// Reset restores every boss to full health and rewinds the session to
// the first boss. The caller resets the store separately; the engine
// only fixes its in-memory authority and announces the new state.
func (e *Engine) Reset(ctx context.Context) error {
	cmd := resetCmd{reply: make(chan struct{}, 1)}
	select {
	case e.cmdChan <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-cmd.reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) reset() {
	e.mu.Lock()
	now := time.Now()
	for _, b := range e.bosses {
		b.CurrentHealth = b.MaxHealth
		b.IsDefeated = false
		b.DefeatedAt = nil
		b.UpdatedAt = now
	}
	e.session.TotalDamageDealt = 0
	e.session.TotalHealApplied = 0
	e.session.LastActivity = now
	if len(e.bosses) > 0 {
		e.session.CurrentBossID = e.bosses[0].ID
	}
	e.dedup = NewDedupCache(e.dedup.capacity, e.dedup.retain)

	var first *state.Boss
	if len(e.bosses) > 0 {
		first = e.bosses[0].Clone()
	}
	sessionClone := *e.session
	e.mu.Unlock()

	e.log.Info().Msg("game reset")
	e.broadcast(BroadcastEvent{
		Kind:    BroadcastAdvance,
		Boss:    first,
		Session: &sessionClone,
		State:   state.BossStateIdle,
	})
}

// scheduleAdvance queues rotation to the next boss after the defeat
// pause. The command is tagged with the defeated boss's ID so a stale
// timer cannot skip a boss that already rotated in.
func (e *Engine) scheduleAdvance(bossID int) {
	ctx := e.ctx
	time.AfterFunc(e.advanceDelay, func() {
		select {
		case e.cmdChan <- advanceCmd{bossID: bossID}:
		case <-ctx.Done():
		}
	})
}

// advance rotates the session to the next undefeated boss by ascending
// ID. With no bosses left the session keeps pointing at the last one.
func (e *Engine) advance(defeatedID int) {
	e.mu.Lock()
	if e.session.CurrentBossID != defeatedID {
		e.mu.Unlock()
		return
	}

	var next *state.Boss
	for _, b := range e.bosses {
		if !b.IsDefeated && b.ID > defeatedID {
			next = b
			break
		}
	}
	if next == nil {
		for _, b := range e.bosses {
			if !b.IsDefeated {
				next = b
				break
			}
		}
	}
	if next == nil {
		e.mu.Unlock()
		e.log.Info().Msg("all bosses defeated, raid complete")
		return
	}

	e.session.CurrentBossID = next.ID
	nextClone := next.Clone()
	sessionClone := *e.session
	e.mu.Unlock()

	e.log.Info().Int("boss_id", nextClone.ID).Str("boss", nextClone.Name).Msg("advancing to next boss")

	e.emit(Output{Session: &sessionClone})
	e.broadcast(BroadcastEvent{
		Kind:    BroadcastAdvance,
		Boss:    nextClone,
		Session: &sessionClone,
		State:   state.BossStateIdle,
	})
}

// emit sends to the persistence worker with a blocking send. The engine
// stalls rather than lose an applied trade.
func (e *Engine) emit(out Output) {
	select {
	case e.persistChan <- out:
	default:
		if e.metrics != nil {
			e.metrics.PersistBackpressure.Inc()
		}
		e.persistChan <- out
	}
}

// broadcast sends to spectators with a non-blocking send; slow fan-out
// must not stall trade processing.
func (e *Engine) broadcast(evt BroadcastEvent) {
	select {
	case e.broadcastChan <- evt:
	default:
		if e.metrics != nil {
			e.metrics.BroadcastDrops.Inc()
		}
	}
}

func (e *Engine) reject(txType, reason string) {
	if e.metrics != nil {
		e.metrics.TradesRejected.WithLabelValues(txType, reason).Inc()
	}
	e.log.Debug().Str("tx_type", txType).Str("reason", reason).Msg("trade dropped")
}
