package terminal

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/okorotkov/fleetsync/internal/domain"
	"github.com/okorotkov/fleetsync/pkg/retrier"
)

// ExtractorConfig bounds the three retry tiers of a history fetch.
type ExtractorConfig struct {
	PlainAttempts    int           // tier 1: bare window fetches
	PlainPause       time.Duration
	WildcardAttempts int           // tier 2: wildcard group filter
	WildcardPause    time.Duration
	DayAttempts      int           // tier 3: per 1-day sub-window
	DayPause         time.Duration
}

// DefaultExtractorConfig matches the production retry budget.
func DefaultExtractorConfig() ExtractorConfig {
	return ExtractorConfig{
		PlainAttempts:    8,
		PlainPause:       time.Second,
		WildcardAttempts: 3,
		WildcardPause:    time.Second,
		DayAttempts:      2,
		DayPause:         500 * time.Millisecond,
	}
}

// Extractor pulls the raw deal log through a session, degrading gracefully:
// it never fails, it only returns less. An empty result means "no data
// observed", not "no data exists".
type Extractor struct {
	cfg    ExtractorConfig
	logger *zap.Logger
}

// NewExtractor creates an extractor with the given retry budget.
func NewExtractor(cfg ExtractorConfig, logger *zap.Logger) *Extractor {
	return &Extractor{cfg: cfg, logger: logger}
}

// Fetch retrieves deals for [from, to] through the session, exhausting three
// tiers: plain retries, a wildcard-scope retry, then best-effort 1-day
// sub-windows where a failing day is skipped rather than aborting the fetch.
func (e *Extractor) Fetch(ctx context.Context, s *Session, from, to time.Time) []domain.RawDeal {
	client := s.Client()

	plain := retrier.Fixed(e.cfg.PlainAttempts, e.cfg.PlainPause)
	deals, err := retrier.DoWithData(plain, ctx, func(ctx context.Context) ([]domain.RawDeal, error) {
		got, err := client.HistoryDeals(ctx, from, to, "")
		if err != nil {
			// a ping nudges a wedged terminal connection before the
			// next attempt, like the original's symbols probe
			_ = client.Ping(ctx)
			return nil, err
		}
		return got, nil
	})
	if err == nil {
		return deals
	}
	e.logger.Warn("plain history fetch exhausted, broadening scope", zap.Error(err))

	wildcard := retrier.Fixed(e.cfg.WildcardAttempts, e.cfg.WildcardPause)
	deals, err = retrier.DoWithData(wildcard, ctx, func(ctx context.Context) ([]domain.RawDeal, error) {
		return client.HistoryDeals(ctx, from, to, "*")
	})
	if err == nil {
		return deals
	}
	e.logger.Warn("wildcard history fetch exhausted, splitting into days", zap.Error(err))

	return e.fetchByDays(ctx, client, from, to)
}

// fetchByDays collects whatever 1-day sub-windows yield; failing days are
// logged and skipped.
func (e *Extractor) fetchByDays(ctx context.Context, client Client, from, to time.Time) []domain.RawDeal {
	var out []domain.RawDeal

	day := retrier.Fixed(e.cfg.DayAttempts, e.cfg.DayPause)
	cur := from
	for !cur.After(to) {
		next := cur.Add(24 * time.Hour)
		if next.After(to) {
			next = to
		}

		windowFrom, windowTo := cur, next
		got, err := retrier.DoWithData(day, ctx, func(ctx context.Context) ([]domain.RawDeal, error) {
			return client.HistoryDeals(ctx, windowFrom, windowTo, "")
		})
		if err != nil {
			e.logger.Warn("sub-window fetch skipped",
				zap.Time("from", windowFrom),
				zap.Time("to", windowTo),
				zap.Error(err))
		} else {
			out = append(out, got...)
		}

		if ctx.Err() != nil {
			break
		}
		cur = next.Add(time.Second)
	}

	return out
}
