package engine

import (
	"github.com/shopspring/decimal"

	"threshold-alerts/internal/thresholds"
)

// Trigger is the outcome of comparing a live price to a symbol's levels.
// The tokens double as durable suppression-key components, so they must
// never change across releases.
type Trigger string

const (
	TriggerNone  Trigger = ""
	TriggerSLHit Trigger = "SL HIT"
	TriggerBuy   Trigger = "BUY"
	TriggerSell  Trigger = "SELL"
)

func (t Trigger) String() string {
	return string(t)
}

// Evaluate maps the latest traded price and a threshold set to at most one
// trigger. The priority chain SL HIT -> BUY -> SELL short-circuits on the
// first match; a price can satisfy several levels at once and only the
// highest-priority reading may be reported. Pure and safe for concurrent
// use: no state, no I/O.
func Evaluate(lastTrade *decimal.Decimal, ts thresholds.ThresholdSet) Trigger {
	if lastTrade == nil {
		return TriggerNone
	}

	if ts.SLHit != nil && lastTrade.Cmp(*ts.SLHit) <= 0 {
		return TriggerSLHit
	}
	if ts.Buy != nil && lastTrade.Cmp(*ts.Buy) <= 0 {
		return TriggerBuy
	}
	if ts.Sell != nil && lastTrade.Cmp(*ts.Sell) >= 0 {
		return TriggerSell
	}
	return TriggerNone
}
