package feed

import (
	"context"

	"github.com/shopspring/decimal"
)

// QuoteRecord is the latest observed trade data for one symbol. Every
// numeric field is optional: the feed omits or mangles values routinely
// and a bad cell must degrade to absent, not kill the run.
type QuoteRecord struct {
	Symbol    string
	LastTrade *decimal.Decimal
	Low       *decimal.Decimal
	High      *decimal.Decimal
	Volume    *decimal.Decimal
}

// Provider supplies the symbol -> quote snapshot for one run.
type Provider interface {
	Snapshot(ctx context.Context) (map[string]QuoteRecord, error)
}
