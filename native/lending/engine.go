package lending

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"time"

	"crosslend/core/events"
	nativecommon "crosslend/native/common"
	"crosslend/native/oracle"
)

const moduleName = "lending"

const (
	defaultOracleTimeout = 3 * time.Second
	// DefaultUpkeepInterval is the period between global rate refreshes.
	DefaultUpkeepInterval = time.Hour
)

// engineState is the persistence boundary the engine mutates through. The
// production implementation lives in core/state; tests provide an in-memory
// mock.
type engineState interface {
	GetPool(asset string) (*Pool, error)
	PutPool(pool *Pool) error
	ListPools() ([]*Pool, error)
	GetPosition(user, asset string) (*Position, error)
	PutPosition(position *Position) error
	UserAssets(user string) ([]string, error)
	LastUpkeep() (time.Time, error)
	SetLastUpkeep(ts time.Time) error
}

// Engine orchestrates every state transition of the lending ledger: pool
// administration, the position ledger, liquidations and upkeep. Direct calls
// and cross-chain message application share these methods, so every mutation
// runs through one code path under the same keyed locks.
type Engine struct {
	state          engineState
	prices         oracle.Oracle
	emitter        events.Emitter
	pauses         nativecommon.PauseView
	locks          *keyedLocks
	oracleTimeout  time.Duration
	upkeepInterval time.Duration
	now            func() time.Time
}

// NewEngine constructs a lending engine over the given state and price feed.
func NewEngine(state engineState, prices oracle.Oracle) *Engine {
	return &Engine{
		state:          state,
		prices:         prices,
		emitter:        events.NoopEmitter{},
		locks:          newKeyedLocks(),
		oracleTimeout:  defaultOracleTimeout,
		upkeepInterval: DefaultUpkeepInterval,
		now:            time.Now,
	}
}

// SetEmitter wires the engine to an event sink.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetPauses wires the operator pause switchboard.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetOracleTimeout bounds every oracle read issued while holding ledger
// locks. Non-positive values fall back to the caller's context deadline.
func (e *Engine) SetOracleTimeout(timeout time.Duration) {
	if e == nil {
		return
	}
	e.oracleTimeout = timeout
}

// SetUpkeepInterval overrides the period between global rate refreshes.
func (e *Engine) SetUpkeepInterval(interval time.Duration) {
	if e == nil || interval <= 0 {
		return
	}
	e.upkeepInterval = interval
}

// SetClock overrides the time source. Test hook.
func (e *Engine) SetClock(now func() time.Time) {
	if e == nil || now == nil {
		return
	}
	e.now = now
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(evt)
}

func normalizeUser(user string) string { return strings.TrimSpace(user) }

func validateKeys(user, asset string) (string, string, error) {
	u := normalizeUser(user)
	if u == "" {
		return "", "", ErrInvalidUser
	}
	a := oracle.NormalizeAsset(asset)
	if a == "" {
		return "", "", ErrInvalidAsset
	}
	return u, a, nil
}

func validateAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (e *Engine) loadPool(asset string) (*Pool, error) {
	pool, err := e.state.GetPool(asset)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, ErrPoolNotFound
	}
	pool.ensureDefaults()
	return pool, nil
}

func (e *Engine) ensurePosition(user, asset string) (*Position, error) {
	position, err := e.state.GetPosition(user, asset)
	if err != nil {
		return nil, err
	}
	if position == nil {
		position = &Position{User: user, Asset: asset}
	}
	position.ensureDefaults()
	return position, nil
}

// fetchPrice resolves the USD price for an asset under the engine's oracle
// deadline. Prices are read while the ledger locks are held so the collateral
// snapshot stays consistent with the mutation it authorizes.
func (e *Engine) fetchPrice(ctx context.Context, asset string) (*big.Int, error) {
	if e.prices == nil {
		return nil, ErrOracleUnavailable
	}
	callCtx := ctx
	if e.oracleTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.oracleTimeout)
		defer cancel()
	}
	quote, err := e.prices.GetPrice(callCtx, asset)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, oracle.ErrUnavailable) {
			e.emit(events.OracleError{Asset: asset, Reason: "unavailable"})
			return nil, ErrOracleUnavailable
		}
		e.emit(events.OracleError{Asset: asset, Reason: "invalid"})
		return nil, ErrInvalidPriceData
	}
	if !quote.Valid || quote.PriceUSD == nil || quote.PriceUSD.Sign() <= 0 {
		e.emit(events.OracleError{Asset: asset, Reason: "invalid"})
		return nil, ErrInvalidPriceData
	}
	return quote.PriceUSD, nil
}

// accountSnapshot sums the borrow limit and current borrows for a user in USD
// value terms across every asset the user holds a position in. When override
// is non-nil it replaces the stored position for its asset, letting withdraw
// evaluate the post-mutation health before persisting anything.
func (e *Engine) accountSnapshot(ctx context.Context, user string, override *Position) (*big.Int, *big.Int, error) {
	assets, err := e.state.UserAssets(user)
	if err != nil {
		return nil, nil, err
	}
	limitUSD := big.NewInt(0)
	borrowsUSD := big.NewInt(0)
	for _, asset := range assets {
		var position *Position
		if override != nil && override.Asset == asset {
			position = override
		} else {
			position, err = e.state.GetPosition(user, asset)
			if err != nil {
				return nil, nil, err
			}
		}
		if position == nil {
			continue
		}
		position.ensureDefaults()
		if position.Supplied.Sign() == 0 && position.Borrowed.Sign() == 0 {
			continue
		}
		price, err := e.fetchPrice(ctx, asset)
		if err != nil {
			return nil, nil, err
		}
		if position.Supplied.Sign() > 0 {
			pool, err := e.loadPool(asset)
			if err != nil {
				return nil, nil, err
			}
			value := new(big.Int).Mul(position.Supplied, price)
			value.Mul(value, new(big.Int).SetUint64(pool.CollateralFactorBps))
			value.Quo(value, basisPoints)
			limitUSD.Add(limitUSD, value)
		}
		if position.Borrowed.Sign() > 0 {
			value := new(big.Int).Mul(position.Borrowed, price)
			borrowsUSD.Add(borrowsUSD, value)
		}
	}
	return limitUSD, borrowsUSD, nil
}

// healthFromSnapshot derives the health factor in basis points: the ratio of
// borrow limit to current borrows, or MaxHealthFactorBps with no debt.
func healthFromSnapshot(limitUSD, borrowsUSD *big.Int) *big.Int {
	if borrowsUSD == nil || borrowsUSD.Sign() == 0 {
		return big.NewInt(MaxHealthFactorBps)
	}
	health := new(big.Int).Mul(limitUSD, basisPoints)
	return health.Quo(health, borrowsUSD)
}
