package ingestion

import (
	"BossRaid/internal/event"
	"encoding/json"
	"fmt"
	"time"
)

// ErrNotATrade marks feed messages that are valid JSON but not trade
// payloads (subscription acks, server notices). Callers skip these.
var ErrNotATrade = fmt.Errorf("not a trade message")

// tradeMessageJSON is the wire format of the upstream trade feed.
// Field names use camelCase to match the producer. Some producers send
// the SOL amount under sol_amount or amount instead of solAmount.
type tradeMessageJSON struct {
	Signature       string  `json:"signature"`
	Mint            string  `json:"mint"`
	TraderPublicKey string  `json:"traderPublicKey"`
	TxType          string  `json:"txType"`
	SolAmount       float64 `json:"solAmount"`
	SolAmountSnake  float64 `json:"sol_amount"`
	Amount          float64 `json:"amount"`
	TokenAmount     float64 `json:"tokenAmount"`
	Message         string  `json:"message"`
}

// ParseTradeMessage converts a raw feed frame into a typed TradeEvent.
// The receive time is supplied by the caller so parsing stays clock-free.
func ParseTradeMessage(data []byte, receivedAt time.Time) (*event.TradeEvent, error) {
	var j tradeMessageJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse trade message: %w", err)
	}

	// Subscription acks carry a message field and no signature.
	if j.Signature == "" {
		if j.Message != "" {
			return nil, ErrNotATrade
		}
		return nil, fmt.Errorf("trade message missing signature")
	}

	if !event.KnownTxType(j.TxType) {
		return nil, fmt.Errorf("unknown txType: %q", j.TxType)
	}

	sol := j.SolAmount
	if sol == 0 {
		sol = j.SolAmountSnake
	}
	if sol == 0 {
		sol = j.Amount
	}

	return &event.TradeEvent{
		Signature:       j.Signature,
		Mint:            j.Mint,
		TraderPublicKey: j.TraderPublicKey,
		SolAmount:       sol,
		TokenAmount:     j.TokenAmount,
		TxType:          event.TxType(j.TxType),
		Timestamp:       receivedAt,
	}, nil
}
