package app

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"threshold-alerts/internal/cooldown"
	"threshold-alerts/internal/feed"
	"threshold-alerts/internal/service"
)

// SimulateAlert 用给定价格替代行情抓取，走一遍完整的评估与推送流程。
// 阈值仍从真实的 CSV 加载，冷却用进程内 gate，不会写入共享的抑制存储。
func (a *App) SimulateAlert(ctx context.Context, symbol string, price decimal.Decimal) error {
	notifier, err := a.newNotifier()
	if err != nil {
		return err
	}

	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	provider := &staticProvider{record: feed.QuoteRecord{
		Symbol:    symbol,
		LastTrade: &price,
	}}

	svc := service.New(a.Config, a.newLoader(), provider, cooldown.NewMemoryGate(), notifier, nil, a.Logger)

	summary, err := svc.RunOnce(ctx)
	if err != nil {
		return err
	}

	if summary.Sent == 0 {
		a.Logger.Info().Str("symbol", symbol).Str("price", price.String()).Msg("no trigger fired for the simulated price")
	}
	return nil
}

type staticProvider struct {
	record feed.QuoteRecord
}

func (p *staticProvider) Snapshot(ctx context.Context) (map[string]feed.QuoteRecord, error) {
	return map[string]feed.QuoteRecord{p.record.Symbol: p.record}, nil
}

var _ feed.Provider = (*staticProvider)(nil)
