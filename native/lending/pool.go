package lending

import (
	"math/big"

	"crosslend/core/events"
	nativecommon "crosslend/native/common"
	"crosslend/native/oracle"
)

// InitializePool creates the aggregate record for a new asset. Pools are
// created exactly once and start active with rates seeded at zero
// utilization.
func (e *Engine) InitializePool(asset string, collateralFactorBps uint64) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	symbol := oracle.NormalizeAsset(asset)
	if symbol == "" {
		return ErrInvalidAsset
	}
	if collateralFactorBps > MaxCollateralFactorBps {
		return ErrInvalidCollateralFactor
	}

	unlock := e.locks.acquire(assetLockKey(symbol))
	defer unlock()

	existing, err := e.state.GetPool(symbol)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrAlreadyInitialized
	}

	borrowRate, supplyRate := Rates(0)
	pool := &Pool{
		Asset:               symbol,
		TotalDeposits:       big.NewInt(0),
		TotalBorrows:        big.NewInt(0),
		UtilizationBps:      0,
		BorrowRateBps:       borrowRate,
		SupplyRateBps:       supplyRate,
		CollateralFactorBps: collateralFactorBps,
		Active:              true,
		LastUpdate:          e.now().UTC(),
	}
	if err := e.state.PutPool(pool); err != nil {
		return err
	}
	e.emit(events.PoolInitialized{Asset: symbol, CollateralFactorBps: collateralFactorBps})
	return nil
}

// SetPoolActive toggles the pool's active flag. Deactivated pools reject all
// mutating operations until re-enabled.
func (e *Engine) SetPoolActive(asset string, active bool) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	symbol := oracle.NormalizeAsset(asset)
	if symbol == "" {
		return ErrInvalidAsset
	}

	unlock := e.locks.acquire(assetLockKey(symbol))
	defer unlock()

	pool, err := e.loadPool(symbol)
	if err != nil {
		return err
	}
	pool.Active = active
	pool.LastUpdate = e.now().UTC()
	return e.state.PutPool(pool)
}

// GetPoolInfo returns a copy of the pool state for the asset.
func (e *Engine) GetPoolInfo(asset string) (*Pool, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	symbol := oracle.NormalizeAsset(asset)
	if symbol == "" {
		return nil, ErrInvalidAsset
	}
	pool, err := e.loadPool(symbol)
	if err != nil {
		return nil, err
	}
	return pool.Clone(), nil
}

// ListPools returns copies of every pool ordered by asset.
func (e *Engine) ListPools() ([]*Pool, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	pools, err := e.state.ListPools()
	if err != nil {
		return nil, err
	}
	out := make([]*Pool, 0, len(pools))
	for _, pool := range pools {
		if pool == nil {
			continue
		}
		pool.ensureDefaults()
		out = append(out, pool.Clone())
	}
	return out, nil
}

// The record helpers mutate a loaded pool in memory; callers persist the pool
// only after every check along the operation has passed, keeping mutations
// all-or-nothing.

func (e *Engine) recordDeposit(pool *Pool, amount *big.Int) error {
	if !pool.Active {
		return ErrPoolInactive
	}
	pool.TotalDeposits = new(big.Int).Add(pool.TotalDeposits, amount)
	e.refreshRates(pool)
	return nil
}

func (e *Engine) recordBorrow(pool *Pool, amount *big.Int) error {
	if !pool.Active {
		return ErrPoolInactive
	}
	projected := new(big.Int).Add(pool.TotalBorrows, amount)
	if projected.Cmp(pool.TotalDeposits) > 0 {
		return ErrInsufficientLiquidity
	}
	pool.TotalBorrows = projected
	e.refreshRates(pool)
	return nil
}

func (e *Engine) recordRepay(pool *Pool, amount *big.Int) error {
	if !pool.Active {
		return ErrPoolInactive
	}
	reduced := new(big.Int).Sub(pool.TotalBorrows, amount)
	if reduced.Sign() < 0 {
		reduced.SetInt64(0)
	}
	pool.TotalBorrows = reduced
	e.refreshRates(pool)
	return nil
}

func (e *Engine) recordWithdraw(pool *Pool, amount *big.Int) error {
	if !pool.Active {
		return ErrPoolInactive
	}
	remaining := new(big.Int).Sub(pool.TotalDeposits, amount)
	if remaining.Cmp(pool.TotalBorrows) < 0 {
		return ErrInsufficientLiquidity
	}
	pool.TotalDeposits = remaining
	e.refreshRates(pool)
	return nil
}

// refreshRates recomputes utilization and feeds the interest model after
// every aggregate mutation.
func (e *Engine) refreshRates(pool *Pool) {
	pool.UtilizationBps = Utilization(pool.TotalBorrows, pool.TotalDeposits)
	pool.BorrowRateBps, pool.SupplyRateBps = Rates(pool.UtilizationBps)
	pool.LastUpdate = e.now().UTC()
}
