package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"threshold-alerts/internal/alerting"
	"threshold-alerts/internal/config"
	"threshold-alerts/internal/cooldown"
	"threshold-alerts/internal/engine"
	"threshold-alerts/internal/feed"
	"threshold-alerts/internal/storage"
	"threshold-alerts/internal/thresholds"
)

func level(v float64) *decimal.Decimal {
	d := decimal.NewFromFloat(v)
	return &d
}

type staticLoader struct {
	sets map[string]thresholds.ThresholdSet
	err  error
}

func (l *staticLoader) Load(ctx context.Context) (map[string]thresholds.ThresholdSet, error) {
	return l.sets, l.err
}

type staticProvider struct {
	quotes map[string]feed.QuoteRecord
}

func (p *staticProvider) Snapshot(ctx context.Context) (map[string]feed.QuoteRecord, error) {
	return p.quotes, nil
}

type recordingNotifier struct {
	notes []alerting.Notification
	err   error
}

func (n *recordingNotifier) Notify(ctx context.Context, note alerting.Notification) error {
	if n.err != nil {
		return n.err
	}
	n.notes = append(n.notes, note)
	return nil
}

type brokenGate struct{}

func (brokenGate) TryAcquire(context.Context, string, engine.Trigger, time.Duration) (bool, error) {
	return false, errors.New("connection refused")
}

func (brokenGate) Exists(context.Context, string, engine.Trigger) (bool, error) {
	return false, errors.New("connection refused")
}

type recordingStore struct {
	inserted []storage.AlertRecord
	pruned   []time.Time
}

func (s *recordingStore) InsertAlert(ctx context.Context, alert storage.AlertRecord) (storage.AlertRecord, error) {
	s.inserted = append(s.inserted, alert)
	return alert, nil
}

func (s *recordingStore) ListRecentAlerts(context.Context, int) ([]storage.AlertRecord, error) {
	return nil, nil
}

func (s *recordingStore) ListSymbolAlertsBetween(context.Context, string, time.Time, time.Time) ([]storage.AlertRecord, error) {
	return nil, nil
}

func (s *recordingStore) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	s.pruned = append(s.pruned, olderThan)
	return nil
}

func (s *recordingStore) CountAlerts(context.Context) (int64, error) {
	return int64(len(s.inserted)), nil
}

func testConfig(failOpen bool) *config.Config {
	return &config.Config{
		Cooldown: config.CooldownConfig{
			Duration: 30 * time.Minute,
			FailOpen: failOpen,
		},
	}
}

func newTestService(cfg *config.Config, loader thresholds.Loader, provider feed.Provider, gate cooldown.Gate, notifier alerting.Notifier) *Service {
	return New(cfg, loader, provider, gate, notifier, nil, zerolog.Nop())
}

func TestRunOnceSendsThenSuppresses(t *testing.T) {
	loader := &staticLoader{sets: map[string]thresholds.ThresholdSet{
		"AAA": {Symbol: "AAA", Buy: level(50), Sell: level(100)},
	}}
	provider := &staticProvider{quotes: map[string]feed.QuoteRecord{
		"AAA": {Symbol: "AAA", LastTrade: level(45)},
	}}
	notifier := &recordingNotifier{}
	svc := newTestService(testConfig(false), loader, provider, cooldown.NewMemoryGate(), notifier)

	summary, err := svc.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce should succeed: %v", err)
	}
	if summary.Sent != 1 || summary.Triggered != 1 {
		t.Fatalf("expected one sent alert, got %+v", summary)
	}
	if len(notifier.notes) != 1 || notifier.notes[0].Trigger != engine.TriggerBuy {
		t.Fatalf("expected a BUY notification, got %+v", notifier.notes)
	}

	// Identical rerun within the cooldown window: trigger still fires but
	// the gate denies.
	summary, err = svc.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if summary.Sent != 0 || summary.Suppressed != 1 {
		t.Fatalf("rerun should be suppressed, got %+v", summary)
	}
	if len(notifier.notes) != 1 {
		t.Fatalf("no second notification may go out, got %d", len(notifier.notes))
	}
}

func TestRunOnceOneAlertPerSymbol(t *testing.T) {
	// Price 40 satisfies SL HIT and BUY; exactly one notification, for the
	// higher-priority trigger.
	loader := &staticLoader{sets: map[string]thresholds.ThresholdSet{
		"AAA": {Symbol: "AAA", SLHit: level(45), Buy: level(50)},
	}}
	provider := &staticProvider{quotes: map[string]feed.QuoteRecord{
		"AAA": {Symbol: "AAA", LastTrade: level(40)},
	}}
	notifier := &recordingNotifier{}
	svc := newTestService(testConfig(false), loader, provider, cooldown.NewMemoryGate(), notifier)

	summary, err := svc.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if summary.Sent != 1 {
		t.Fatalf("expected exactly one alert, got %+v", summary)
	}
	if notifier.notes[0].Trigger != engine.TriggerSLHit {
		t.Fatalf("expected SL HIT to win priority, got %q", notifier.notes[0].Trigger)
	}
}

func TestRunOnceSkipsSymbolsWithoutQuotes(t *testing.T) {
	loader := &staticLoader{sets: map[string]thresholds.ThresholdSet{
		"AAA": {Symbol: "AAA", Buy: level(50)},
		"BBB": {Symbol: "BBB", Buy: level(50)},
	}}
	provider := &staticProvider{quotes: map[string]feed.QuoteRecord{
		"BBB": {Symbol: "BBB", LastTrade: level(45)},
	}}
	notifier := &recordingNotifier{}
	svc := newTestService(testConfig(false), loader, provider, cooldown.NewMemoryGate(), notifier)

	summary, err := svc.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if summary.Symbols != 2 || summary.Quoted != 1 || summary.Sent != 1 {
		t.Fatalf("unquoted symbols are silently skipped, got %+v", summary)
	}
}

func TestRunOnceThresholdLoadIsFatal(t *testing.T) {
	loader := &staticLoader{err: errors.New("header mismatch")}
	notifier := &recordingNotifier{}
	svc := newTestService(testConfig(false), loader, &staticProvider{}, cooldown.NewMemoryGate(), notifier)

	if _, err := svc.RunOnce(context.Background()); err == nil {
		t.Fatal("threshold load failure must abort the run")
	}
	if len(notifier.notes) != 0 {
		t.Fatal("nothing may be notified after a fatal load")
	}
}

func TestRunOnceNotifyFailureCountsAsFailed(t *testing.T) {
	loader := &staticLoader{sets: map[string]thresholds.ThresholdSet{
		"AAA": {Symbol: "AAA", Buy: level(50)},
	}}
	provider := &staticProvider{quotes: map[string]feed.QuoteRecord{
		"AAA": {Symbol: "AAA", LastTrade: level(45)},
	}}
	notifier := &recordingNotifier{err: errors.New("telegram down")}
	svc := newTestService(testConfig(false), loader, provider, cooldown.NewMemoryGate(), notifier)

	summary, err := svc.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("delivery failure must not abort the run: %v", err)
	}
	if summary.Sent != 0 || summary.Failed != 1 {
		t.Fatalf("expected a failed delivery, got %+v", summary)
	}
}

func TestRunOnceGateErrorFailClosed(t *testing.T) {
	loader := &staticLoader{sets: map[string]thresholds.ThresholdSet{
		"AAA": {Symbol: "AAA", Buy: level(50)},
	}}
	provider := &staticProvider{quotes: map[string]feed.QuoteRecord{
		"AAA": {Symbol: "AAA", LastTrade: level(45)},
	}}
	notifier := &recordingNotifier{}
	svc := newTestService(testConfig(false), loader, provider, brokenGate{}, notifier)

	summary, err := svc.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if summary.Sent != 0 || summary.Suppressed != 1 {
		t.Fatalf("fail-closed must suppress on store errors, got %+v", summary)
	}
	if len(notifier.notes) != 0 {
		t.Fatal("fail-closed must not notify")
	}
}

func TestRunOncePrunesAlertHistory(t *testing.T) {
	loader := &staticLoader{sets: map[string]thresholds.ThresholdSet{
		"AAA": {Symbol: "AAA", Buy: level(50)},
	}}
	provider := &staticProvider{quotes: map[string]feed.QuoteRecord{
		"AAA": {Symbol: "AAA", LastTrade: level(45)},
	}}
	store := &recordingStore{}
	cfg := testConfig(false)
	cfg.Database.Retention = 30 * 24 * time.Hour

	svc := New(cfg, loader, provider, cooldown.NewMemoryGate(), &recordingNotifier{}, store, zerolog.Nop())
	frozen := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return frozen }

	if _, err := svc.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(store.inserted) != 1 {
		t.Fatalf("delivered alert must be audited, got %d records", len(store.inserted))
	}
	if len(store.pruned) != 1 {
		t.Fatalf("expected one prune per pass, got %d", len(store.pruned))
	}
	if want := frozen.Add(-30 * 24 * time.Hour); !store.pruned[0].Equal(want) {
		t.Fatalf("prune cutoff 应为 %s, got %s", want, store.pruned[0])
	}
}

func TestRunOnceNoRetentionNoPrune(t *testing.T) {
	loader := &staticLoader{sets: map[string]thresholds.ThresholdSet{
		"AAA": {Symbol: "AAA", Buy: level(50)},
	}}
	provider := &staticProvider{quotes: map[string]feed.QuoteRecord{
		"AAA": {Symbol: "AAA", LastTrade: level(45)},
	}}
	store := &recordingStore{}

	svc := New(testConfig(false), loader, provider, cooldown.NewMemoryGate(), &recordingNotifier{}, store, zerolog.Nop())
	if _, err := svc.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(store.pruned) != 0 {
		t.Fatalf("retention zero keeps history forever, got %d prunes", len(store.pruned))
	}
}

func TestRunOnceGateErrorFailOpen(t *testing.T) {
	loader := &staticLoader{sets: map[string]thresholds.ThresholdSet{
		"AAA": {Symbol: "AAA", Buy: level(50)},
	}}
	provider := &staticProvider{quotes: map[string]feed.QuoteRecord{
		"AAA": {Symbol: "AAA", LastTrade: level(45)},
	}}
	notifier := &recordingNotifier{}
	svc := newTestService(testConfig(true), loader, provider, brokenGate{}, notifier)

	summary, err := svc.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if summary.Sent != 1 {
		t.Fatalf("fail-open must allow delivery on store errors, got %+v", summary)
	}
}
