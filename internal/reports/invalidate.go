package reports

import (
	"context"
	"log/slog"
	"time"

	"github.com/meridianpos/meridian/internal/journal"
)

// Invalidator hangs off the journal's posting hook and bumps the report
// cache version whenever the books change, so cached statements are never
// staler than the TTL or the last write, whichever is sooner.
type Invalidator struct {
	logger *slog.Logger
	cache  *Cache
	next   journal.Metrics
}

func NewInvalidator(logger *slog.Logger, cache *Cache, next journal.Metrics) *Invalidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Invalidator{logger: logger, cache: cache, next: next}
}

func (i *Invalidator) ObservePosting(source journal.Source) {
	if i.next != nil {
		i.next.ObservePosting(source)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := i.cache.Bump(ctx); err != nil {
		i.logger.Warn("report cache bump failed", slog.Any("error", err))
	}
}

func (i *Invalidator) ObserveIdempotentHit(source journal.Source) {
	if i.next != nil {
		i.next.ObserveIdempotentHit(source)
	}
}
