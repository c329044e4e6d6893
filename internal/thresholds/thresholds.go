package thresholds

import (
	"context"

	"github.com/shopspring/decimal"
)

// ThresholdSet holds the configured price levels for one symbol.
// A nil level means "no rule of this kind"; absence is distinct from zero.
type ThresholdSet struct {
	Symbol string
	Buy    *decimal.Decimal
	Sell   *decimal.Decimal
	SLHit  *decimal.Decimal
}

// Loader produces the symbol -> threshold mapping for one run.
type Loader interface {
	Load(ctx context.Context) (map[string]ThresholdSet, error)
}
