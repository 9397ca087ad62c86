package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"
)

// USDDecimals fixes the precision for oracle prices: PriceUSD values carry
// eight decimal places, so $1.00 is represented as 100_000_000.
const USDDecimals = 8

var usdScale = big.NewInt(100_000_000)

// ErrNoFreshQuote indicates that no registered feed produced a quote within
// the configured freshness window.
var ErrNoFreshQuote = errors.New("oracle: no fresh quote available")

// ErrUnavailable indicates the feed could not be reached before the deadline.
var ErrUnavailable = errors.New("oracle: feed unavailable")

// PriceQuote captures a USD price for an asset along with the timestamp
// reported by the upstream feed. Quotes are ephemeral and never persisted.
type PriceQuote struct {
	Asset     string
	PriceUSD  *big.Int
	Timestamp time.Time
	Valid     bool
	Source    string
}

// Clone returns a deep copy of the quote to prevent accidental mutations.
func (q PriceQuote) Clone() PriceQuote {
	clone := PriceQuote{Asset: q.Asset, Timestamp: q.Timestamp, Valid: q.Valid, Source: q.Source}
	if q.PriceUSD != nil {
		clone.PriceUSD = new(big.Int).Set(q.PriceUSD)
	}
	return clone
}

// Oracle resolves the USD price for an asset. Implementations must honour the
// context deadline so callers holding ledger locks are never stalled.
type Oracle interface {
	GetPrice(ctx context.Context, asset string) (PriceQuote, error)
}

// ParsePriceUSD converts a decimal string such as "101.25" into the
// fixed-point representation used by PriceQuote.
func ParsePriceUSD(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("oracle: price required")
	}
	rat, ok := new(big.Rat).SetString(trimmed)
	if !ok {
		return nil, fmt.Errorf("oracle: invalid price %q", value)
	}
	if rat.Sign() <= 0 {
		return nil, fmt.Errorf("oracle: price must be positive")
	}
	scaled := new(big.Rat).Mul(rat, new(big.Rat).SetInt(usdScale))
	return new(big.Int).Quo(scaled.Num(), scaled.Denom()), nil
}

// NormalizeAsset canonicalises asset symbols for map lookups.
func NormalizeAsset(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset))
}

// ManualOracle is an in-memory feed used by tests and for manual overrides
// during incident response.
type ManualOracle struct {
	mu     sync.RWMutex
	quotes map[string]PriceQuote
}

// NewManualOracle constructs an empty manual feed.
func NewManualOracle() *ManualOracle {
	return &ManualOracle{quotes: make(map[string]PriceQuote)}
}

// Set stores the provided fixed-point price for the asset.
func (m *ManualOracle) Set(asset string, priceUSD *big.Int, ts time.Time) {
	if m == nil || priceUSD == nil {
		return
	}
	key := NormalizeAsset(asset)
	if key == "" {
		return
	}
	m.mu.Lock()
	m.quotes[key] = PriceQuote{
		Asset:     key,
		PriceUSD:  new(big.Int).Set(priceUSD),
		Timestamp: ts,
		Valid:     priceUSD.Sign() > 0,
		Source:    "manual",
	}
	m.mu.Unlock()
}

// SetDecimal records the supplied decimal USD price for the asset.
func (m *ManualOracle) SetDecimal(asset, price string, ts time.Time) error {
	if m == nil {
		return fmt.Errorf("manual oracle not configured")
	}
	parsed, err := ParsePriceUSD(price)
	if err != nil {
		return err
	}
	m.Set(asset, parsed, ts)
	return nil
}

// MarkInvalid flags the stored quote for the asset as unusable while keeping
// the last known price for inspection.
func (m *ManualOracle) MarkInvalid(asset string) {
	if m == nil {
		return
	}
	key := NormalizeAsset(asset)
	m.mu.Lock()
	if quote, ok := m.quotes[key]; ok {
		quote.Valid = false
		m.quotes[key] = quote
	}
	m.mu.Unlock()
}

// GetPrice retrieves the stored quote for the asset.
func (m *ManualOracle) GetPrice(_ context.Context, asset string) (PriceQuote, error) {
	if m == nil {
		return PriceQuote{}, fmt.Errorf("manual oracle not configured")
	}
	key := NormalizeAsset(asset)
	m.mu.RLock()
	stored, ok := m.quotes[key]
	m.mu.RUnlock()
	if !ok {
		return PriceQuote{}, fmt.Errorf("manual oracle: quote for %s not found", key)
	}
	return stored.Clone(), nil
}
