package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Aggregator consults registered feeds in priority order until one yields a
// fresh, positive quote. It enforces the freshness window and a per-feed call
// timeout so that a slow upstream cannot stall a caller holding ledger locks.
type Aggregator struct {
	mu       sync.RWMutex
	priority []string
	feeds    map[string]Oracle
	maxAge   time.Duration
	timeout  time.Duration
}

// NewAggregator constructs an aggregator with the provided priority ordering
// and freshness window. When priority is nil an empty slice is initialised so
// that Register can safely append identifiers.
func NewAggregator(priority []string, maxAge time.Duration) *Aggregator {
	prio := append([]string{}, priority...)
	return &Aggregator{
		priority: prio,
		feeds:    make(map[string]Oracle),
		maxAge:   maxAge,
		timeout:  5 * time.Second,
	}
}

// SetMaxAge updates the freshness window used when filtering quotes.
func (a *Aggregator) SetMaxAge(maxAge time.Duration) {
	if a == nil {
		return
	}
	a.mu.Lock()
	a.maxAge = maxAge
	a.mu.Unlock()
}

// SetTimeout bounds each upstream call. Non-positive values disable the
// aggregator-imposed deadline and the caller's context governs alone.
func (a *Aggregator) SetTimeout(timeout time.Duration) {
	if a == nil {
		return
	}
	a.mu.Lock()
	a.timeout = timeout
	a.mu.Unlock()
}

// Register adds or replaces a feed under the supplied identifier. Identifiers
// are stored lowercase so lookups stay consistent with configuration casing.
func (a *Aggregator) Register(name string, feed Oracle) {
	if a == nil {
		return
	}
	trimmed := strings.ToLower(strings.TrimSpace(name))
	if trimmed == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.feeds[trimmed] = feed
	for _, entry := range a.priority {
		if strings.EqualFold(entry, trimmed) {
			return
		}
	}
	a.priority = append(a.priority, trimmed)
}

// GetPrice fetches a quote respecting the priority ordering. Stale or
// non-positive quotes are skipped; when every feed fails the last error is
// surfaced, with a context deadline translated into ErrUnavailable.
func (a *Aggregator) GetPrice(ctx context.Context, asset string) (PriceQuote, error) {
	if a == nil {
		return PriceQuote{}, fmt.Errorf("oracle aggregator not configured")
	}
	symbol := NormalizeAsset(asset)
	if symbol == "" {
		return PriceQuote{}, fmt.Errorf("oracle: asset required")
	}

	a.mu.RLock()
	priority := append([]string{}, a.priority...)
	maxAge := a.maxAge
	timeout := a.timeout
	a.mu.RUnlock()

	cutoff := time.Time{}
	if maxAge > 0 {
		cutoff = time.Now().Add(-maxAge)
	}

	var lastErr error
	for _, name := range priority {
		a.mu.RLock()
		feed := a.feeds[strings.ToLower(name)]
		a.mu.RUnlock()
		if feed == nil {
			continue
		}
		quote, err := a.callFeed(ctx, feed, symbol, timeout)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return PriceQuote{}, fmt.Errorf("%w: %s: %v", ErrUnavailable, name, err)
			}
			lastErr = err
			continue
		}
		if maxAge > 0 && quote.Timestamp.Before(cutoff) {
			lastErr = ErrNoFreshQuote
			continue
		}
		result := quote.Clone()
		result.Asset = symbol
		if strings.TrimSpace(result.Source) == "" {
			result.Source = strings.ToLower(name)
		}
		return result, nil
	}

	if lastErr == nil {
		lastErr = ErrNoFreshQuote
	}
	return PriceQuote{}, lastErr
}

func (a *Aggregator) callFeed(ctx context.Context, feed Oracle, asset string, timeout time.Duration) (PriceQuote, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return feed.GetPrice(ctx, asset)
}
