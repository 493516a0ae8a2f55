package event

import (
	"time"
)

// TxType discriminator for trade direction
type TxType string

const (
	TxTypeBuy    TxType = "buy"
	TxTypeSell   TxType = "sell"
	TxTypeCreate TxType = "create"
)

// TradeEvent is one swap observed on the upstream trade feed.
// Idempotency key: Signature (transaction signature from the chain).
type TradeEvent struct {
	Signature       string // Idempotency key
	Mint            string
	TraderPublicKey string
	SolAmount       float64
	TokenAmount     float64
	TxType          TxType
	Timestamp       time.Time // Feed receive time, carried through the pipeline
}

func (t *TradeEvent) IdempotencyKey() string {
	return t.Signature
}

// IsBuy reports whether the trade applies damage. A create event is the
// dev's initial buy and is treated as a buy.
func (t *TradeEvent) IsBuy() bool {
	return t.TxType == TxTypeBuy || t.TxType == TxTypeCreate
}

func (t *TradeEvent) IsSell() bool {
	return t.TxType == TxTypeSell
}

// KnownTxType reports whether the feed's txType maps to a direction we act on.
func KnownTxType(s string) bool {
	switch TxType(s) {
	case TxTypeBuy, TxTypeSell, TxTypeCreate:
		return true
	}
	return false
}
