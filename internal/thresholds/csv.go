package thresholds

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var expectedHeader = []string{"SYMBOL", "BUY", "SELL", "SLHIT"}

// absentTokens are the exact cell values that mean "no level configured".
var absentTokens = map[string]struct{}{
	"":     {},
	"NA":   {},
	"N/A":  {},
	"-":    {},
	"null": {},
	"NULL": {},
}

// CSVOptions parameterise the threshold sheet loader.
type CSVOptions struct {
	URL       string
	Timeout   time.Duration
	UserAgent string
}

// CSVLoader fetches the threshold sheet over HTTPS and parses it.
type CSVLoader struct {
	opts   CSVOptions
	logger zerolog.Logger
	client *http.Client
}

// NewCSVLoader constructs a threshold sheet loader.
func NewCSVLoader(opts CSVOptions, logger zerolog.Logger) *CSVLoader {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &CSVLoader{
		opts:   opts,
		logger: logger.With().Str("component", "threshold_loader").Logger(),
		client: &http.Client{Timeout: timeout},
	}
}

// Load fetches and parses the sheet. Any failure here is fatal to the run:
// there is nothing to evaluate without thresholds.
func (l *CSVLoader) Load(ctx context.Context) (map[string]ThresholdSet, error) {
	if l.opts.URL == "" {
		return nil, errors.New("threshold csv url not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.opts.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create threshold request: %w", err)
	}
	if ua := strings.TrimSpace(l.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch threshold csv: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("threshold csv responded %d", resp.StatusCode)
	}

	reader := csv.NewReader(resp.Body)
	// Ragged rows degrade instead of aborting the run: missing cells read
	// as absent levels, extra cells are ignored.
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read threshold header: %w", err)
	}
	if err := validateHeader(header); err != nil {
		return nil, err
	}

	sets := make(map[string]ThresholdSet)
	rows := 0
	for {
		row, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read threshold row: %w", err)
		}
		rows++

		symbol := strings.ToUpper(strings.TrimSpace(cell(row, 0)))
		if symbol == "" {
			l.logger.Warn().Int("row", rows).Msg("skipping threshold row with empty symbol")
			continue
		}

		// Later duplicate rows override earlier ones: last-wins.
		sets[symbol] = ThresholdSet{
			Symbol: symbol,
			Buy:    parseLevel(cell(row, 1)),
			Sell:   parseLevel(cell(row, 2)),
			SLHit:  parseLevel(cell(row, 3)),
		}
	}

	l.logger.Info().Int("rows", rows).Int("symbols", len(sets)).Msg("thresholds loaded")
	return sets, nil
}

func validateHeader(header []string) error {
	if len(header) != len(expectedHeader) {
		return fmt.Errorf("csv header must be: %s", strings.Join(expectedHeader, ","))
	}
	for i, col := range header {
		if !strings.EqualFold(strings.TrimSpace(col), expectedHeader[i]) {
			return fmt.Errorf("csv header must be: %s", strings.Join(expectedHeader, ","))
		}
	}
	return nil
}

// cell returns the i-th column of a row, or "" when the row is short.
func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

// parseLevel maps a numeric cell to a level. The sentinel tokens and any
// unparseable value resolve to absent, never to an error.
func parseLevel(cell string) *decimal.Decimal {
	trimmed := strings.TrimSpace(cell)
	if _, absent := absentTokens[trimmed]; absent {
		return nil
	}

	value, err := decimal.NewFromString(trimmed)
	if err != nil {
		return nil
	}
	return &value
}

var _ Loader = (*CSVLoader)(nil)
