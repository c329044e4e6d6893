package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"threshold-alerts/internal/alerting"
	"threshold-alerts/internal/config"
	"threshold-alerts/internal/cooldown"
	"threshold-alerts/internal/engine"
	"threshold-alerts/internal/feed"
	"threshold-alerts/internal/storage"
	"threshold-alerts/internal/thresholds"
)

// Summary reports the outcome of one watch pass.
type Summary struct {
	Symbols    int // symbols with configured thresholds
	Quoted     int // of those, symbols present in the quote snapshot
	Triggered  int // evaluations that produced a trigger
	Suppressed int // triggers denied by the cooldown gate
	Sent       int // notifications actually delivered
	Failed     int // notification deliveries that errored
}

// Service orchestrates one threshold watch pass.
type Service struct {
	loader   thresholds.Loader
	feed     feed.Provider
	gate     cooldown.Gate
	notifier alerting.Notifier
	alerts   storage.AlertStore
	logger   zerolog.Logger

	cooldownTTL time.Duration
	failOpen    bool
	retention   time.Duration
	now         func() time.Time
}

// New constructs the watch service.
func New(cfg *config.Config, loader thresholds.Loader, provider feed.Provider, gate cooldown.Gate, notifier alerting.Notifier, alerts storage.AlertStore, logger zerolog.Logger) *Service {
	return &Service{
		loader:      loader,
		feed:        provider,
		gate:        gate,
		notifier:    notifier,
		alerts:      alerts,
		logger:      logger.With().Str("component", "service").Logger(),
		cooldownTTL: cfg.Cooldown.Duration,
		failOpen:    cfg.Cooldown.FailOpen,
		retention:   cfg.Database.Retention,
		now:         time.Now,
	}
}

// RunOnce executes one full pass: load thresholds, snapshot quotes,
// evaluate every configured symbol, and notify where the cooldown gate
// grants. The threshold load is the only fatal step; everything after it
// degrades per symbol. At most one notification goes out per symbol per
// pass.
func (s *Service) RunOnce(ctx context.Context) (Summary, error) {
	sets, err := s.loader.Load(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("load thresholds: %w", err)
	}

	quotes, err := s.feed.Snapshot(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("snapshot quotes: %w", err)
	}

	summary := Summary{Symbols: len(sets)}

	for _, symbol := range sortedSymbols(sets) {
		quote, ok := quotes[symbol]
		if !ok {
			continue
		}
		summary.Quoted++

		trigger := engine.Evaluate(quote.LastTrade, sets[symbol])
		if trigger == engine.TriggerNone {
			continue
		}
		summary.Triggered++

		allowed, gateErr := s.gate.TryAcquire(ctx, symbol, trigger, s.cooldownTTL)
		if gateErr != nil {
			if s.failOpen {
				s.logger.Error().Err(gateErr).Str("symbol", symbol).
					Str("trigger", trigger.String()).
					Msg("cooldown store unreachable; failing open, duplicate alerts possible")
				allowed = true
			} else {
				s.logger.Error().Err(gateErr).Str("symbol", symbol).
					Str("trigger", trigger.String()).
					Msg("cooldown store unreachable; failing closed, alert suppressed")
				summary.Suppressed++
				continue
			}
		}
		if !allowed {
			s.logger.Debug().Str("symbol", symbol).Str("trigger", trigger.String()).Msg("alert suppressed by cooldown")
			summary.Suppressed++
			continue
		}

		note := alerting.Notification{
			Symbol:    symbol,
			Trigger:   trigger,
			LastTrade: quote.LastTrade,
			Low:       quote.Low,
			High:      quote.High,
			Volume:    quote.Volume,
			At:        s.now(),
		}
		if notifyErr := s.notifier.Notify(ctx, note); notifyErr != nil {
			s.logger.Error().Err(notifyErr).Str("symbol", symbol).
				Str("trigger", trigger.String()).
				Msg("failed to dispatch alert")
			summary.Failed++
			continue
		}
		summary.Sent++

		s.auditAlert(ctx, note)
	}

	s.pruneAlerts(ctx)

	s.logger.Info().
		Int("symbols", summary.Symbols).
		Int("quoted", summary.Quoted).
		Int("triggered", summary.Triggered).
		Int("suppressed", summary.Suppressed).
		Int("sent", summary.Sent).
		Int("failed", summary.Failed).
		Msg("watch pass complete")

	return summary, nil
}

// auditAlert records a delivered notification; audit failure never affects
// the pass outcome.
func (s *Service) auditAlert(ctx context.Context, note alerting.Notification) {
	if s.alerts == nil || note.LastTrade == nil {
		return
	}

	record := storage.AlertRecord{
		Symbol:    note.Symbol,
		Trigger:   note.Trigger.String(),
		LastTrade: *note.LastTrade,
		Low:       note.Low,
		High:      note.High,
		Volume:    note.Volume,
	}
	if _, err := s.alerts.InsertAlert(ctx, record); err != nil {
		s.logger.Error().Err(err).Str("symbol", note.Symbol).Msg("failed to persist alert record")
	}
}

// pruneAlerts drops audit rows older than the configured retention window
// at the end of a pass. Retention zero keeps everything; prune failure
// never affects the pass outcome.
func (s *Service) pruneAlerts(ctx context.Context) {
	if s.alerts == nil || s.retention <= 0 {
		return
	}

	cutoff := s.now().Add(-s.retention)
	if err := s.alerts.DeleteAlertsBefore(ctx, cutoff); err != nil {
		s.logger.Error().Err(err).Time("cutoff", cutoff).Msg("failed to prune alert history")
		return
	}
	s.logger.Debug().Time("cutoff", cutoff).Msg("alert history pruned")
}

func sortedSymbols(sets map[string]thresholds.ThresholdSet) []string {
	symbols := make([]string, 0, len(sets))
	for symbol := range sets {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}
