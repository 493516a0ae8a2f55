package ingestion

import (
	"BossRaid/internal/event"
	"fmt"
	"time"
)

// Rejection reasons, used as metric labels.
const (
	RejectMintMismatch = "mint_mismatch"
	RejectZeroAmount   = "zero_amount"
	RejectAmountCap    = "amount_cap"
	RejectRateLimited  = "rate_limited"
)

// MaxTradeSol is the sanity cap on a single trade. A feed glitch
// reporting an absurd amount must not one-shot a boss.
const MaxTradeSol = 1000.0

// FilterError carries the rejection reason alongside the message.
type FilterError struct {
	Reason string
	msg    string
}

func (e *FilterError) Error() string { return e.msg }

// Filter validates incoming trades and applies a sliding-window rate
// limit. It is owned by the single ingestion goroutine and keeps its
// window state unexported; no locking is needed.
type Filter struct {
	mint       string
	windowSize time.Duration
	maxPerWin  int
	window     []time.Time
}

// NewFilter builds a filter for the configured mint. An empty mint
// disables the mint check (useful in tests and local replay).
func NewFilter(mint string, windowSize time.Duration, maxPerWindow int) *Filter {
	return &Filter{
		mint:       mint,
		windowSize: windowSize,
		maxPerWin:  maxPerWindow,
		window:     make([]time.Time, 0, maxPerWindow+1),
	}
}

// Check returns nil if the trade should be admitted. Rate-limit state
// advances only for trades that pass validation, so junk frames cannot
// starve real trades.
func (f *Filter) Check(evt *event.TradeEvent, now time.Time) error {
	if f.mint != "" && evt.Mint != f.mint {
		return &FilterError{Reason: RejectMintMismatch, msg: fmt.Sprintf("mint %s does not match configured token", evt.Mint)}
	}
	if evt.SolAmount <= 0 {
		return &FilterError{Reason: RejectZeroAmount, msg: "non-positive sol amount"}
	}
	if evt.SolAmount >= MaxTradeSol {
		return &FilterError{Reason: RejectAmountCap, msg: fmt.Sprintf("sol amount %.2f exceeds cap", evt.SolAmount)}
	}

	// Sliding window: drop entries older than windowSize, then admit if
	// there is room. The admitted trade's own timestamp counts toward
	// subsequent checks.
	cutoff := now.Add(-f.windowSize)
	kept := f.window[:0]
	for _, t := range f.window {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	f.window = kept

	if len(f.window) >= f.maxPerWin {
		return &FilterError{Reason: RejectRateLimited, msg: fmt.Sprintf("rate limit: %d trades in %s", len(f.window), f.windowSize)}
	}
	f.window = append(f.window, now)
	return nil
}
