package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// AlertRecord captures a delivered notification for auditing. The trigger
// price is always present (no alert fires without one); the remaining
// quote fields carry whatever the feed supplied.
type AlertRecord struct {
	ID        int64
	Symbol    string
	Trigger   string
	LastTrade decimal.Decimal
	Low       *decimal.Decimal
	High      *decimal.Decimal
	Volume    *decimal.Decimal
	CreatedAt time.Time
}
