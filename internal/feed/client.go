package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Options parameterise the quote feed client.
type Options struct {
	BaseURL    string
	Cookie     string
	UserAgent  string
	WatchCodes []int
	Timeout    time.Duration
}

// Client polls the watch-category feed endpoint.
type Client struct {
	opts   Options
	logger zerolog.Logger
	client *http.Client
}

// NewClient constructs a feed client.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	return &Client{
		opts:   opts,
		logger: logger.With().Str("component", "feed_client").Logger(),
		client: &http.Client{Timeout: timeout},
	}
}

// Snapshot fetches every configured watch code concurrently and merges the
// rows into one symbol-keyed snapshot. A failed or malformed response for a
// single code degrades to zero records for that code. Duplicate symbols
// across codes resolve first-seen-wins in ascending code order, so the
// merge is deterministic regardless of fetch completion order.
func (c *Client) Snapshot(ctx context.Context) (map[string]QuoteRecord, error) {
	if c.opts.BaseURL == "" {
		return nil, errors.New("feed base url not configured")
	}

	results := make([][]feedRow, len(c.opts.WatchCodes))

	g, gctx := errgroup.WithContext(ctx)
	for i, code := range c.opts.WatchCodes {
		i, code := i, code
		g.Go(func() error {
			rows, err := c.fetchCode(gctx, code)
			if err != nil {
				c.logger.Warn().Err(err).Int("code", code).Msg("watch code fetch failed; treating as empty")
				return nil
			}
			results[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snapshot := make(map[string]QuoteRecord)
	for _, rows := range results {
		for _, row := range rows {
			symbol := strings.ToUpper(strings.TrimSpace(decodeString(row.SymbolCode)))
			if symbol == "" {
				continue
			}
			if _, seen := snapshot[symbol]; seen {
				continue
			}
			snapshot[symbol] = QuoteRecord{
				Symbol:    symbol,
				LastTrade: decodeNumber(row.LastTradePrice),
				Low:       decodeNumber(row.LowPrice),
				High:      decodeNumber(row.HighPrice),
				Volume:    decodeNumber(row.TotalTradedVolume),
			}
		}
	}

	c.logger.Info().Int("codes", len(c.opts.WatchCodes)).Int("symbols", len(snapshot)).Msg("quote snapshot built")
	return snapshot, nil
}

func (c *Client) fetchCode(ctx context.Context, code int) ([]feedRow, error) {
	body := strings.NewReader(fmt.Sprintf("type=I&code=%d", code))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL, body)
	if err != nil {
		return nil, fmt.Errorf("create feed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json,text/plain,*/*")
	if c.opts.Cookie != "" {
		req.Header.Set("Cookie", c.opts.Cookie)
	}
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch code %d: %w", code, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read code %d response: %w", code, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("code %d responded %d", code, resp.StatusCode)
	}

	var decoded feedResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("decode code %d response: %w", code, err)
	}

	return decoded.Rows, nil
}

// feedRow carries raw JSON cells: the feed emits numbers sometimes as JSON
// numbers and sometimes as quoted strings with thousands separators.
type feedRow struct {
	SymbolCode        json.RawMessage `json:"SYMBOL_CODE"`
	LastTradePrice    json.RawMessage `json:"LAST_TRADE_PRICE"`
	LowPrice          json.RawMessage `json:"LOW_PRICE"`
	HighPrice         json.RawMessage `json:"HIGH_PRICE"`
	TotalTradedVolume json.RawMessage `json:"TOTAL_TRADED_VOLUME"`
}

type feedResponse struct {
	Rows []feedRow `json:"aData"`
}

func decodeString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.Trim(string(raw), `"`)
}

// decodeNumber resolves a raw cell to a finite decimal or absent. Parsing
// failures degrade to absent rather than an error.
func decodeNumber(raw json.RawMessage) *decimal.Decimal {
	text := strings.TrimSpace(decodeString(raw))
	if text == "" || text == "null" {
		return nil
	}

	text = strings.ReplaceAll(text, ",", "")
	value, err := decimal.NewFromString(text)
	if err != nil {
		return nil
	}
	return &value
}

var _ Provider = (*Client)(nil)
