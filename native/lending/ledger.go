package lending

import (
	"context"
	"math/big"

	"crosslend/core/events"
	nativecommon "crosslend/native/common"
)

// Supply deposits liquidity into the asset's pool and credits the caller's
// position. Positions are created lazily on first use.
func (e *Engine) Supply(user, asset string, amount *big.Int) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	u, a, err := validateKeys(user, asset)
	if err != nil {
		return err
	}
	if err := validateAmount(amount); err != nil {
		return err
	}

	unlock := e.locks.acquire(userLockKey(u), assetLockKey(a))
	defer unlock()

	pool, err := e.loadPool(a)
	if err != nil {
		return err
	}
	if err := e.recordDeposit(pool, amount); err != nil {
		return err
	}

	position, err := e.ensurePosition(u, a)
	if err != nil {
		return err
	}
	position.Supplied = new(big.Int).Add(position.Supplied, amount)
	position.Active = true
	position.LastUpdate = e.now().UTC()

	if err := e.state.PutPosition(position); err != nil {
		return err
	}
	if err := e.state.PutPool(pool); err != nil {
		return err
	}
	e.emit(events.LedgerMutation{Type: events.TypeSupplied, User: u, Asset: a, Amount: new(big.Int).Set(amount)})
	return nil
}

// Borrow draws pooled liquidity against the caller's collateral across all
// assets. The borrow limit uses each pool's collateral factor; current
// borrows are valued without it. Prices are read inside the locked section.
func (e *Engine) Borrow(ctx context.Context, user, asset string, amount *big.Int) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	u, a, err := validateKeys(user, asset)
	if err != nil {
		return err
	}
	if err := validateAmount(amount); err != nil {
		return err
	}

	unlock := e.locks.acquire(userLockKey(u), assetLockKey(a))
	defer unlock()

	pool, err := e.loadPool(a)
	if err != nil {
		return err
	}
	if !pool.Active {
		return ErrPoolInactive
	}

	limitUSD, borrowsUSD, err := e.accountSnapshot(ctx, u, nil)
	if err != nil {
		return err
	}
	price, err := e.fetchPrice(ctx, a)
	if err != nil {
		return err
	}
	amountUSD := new(big.Int).Mul(amount, price)
	projected := new(big.Int).Add(borrowsUSD, amountUSD)
	if projected.Cmp(limitUSD) > 0 {
		return ErrInsufficientCollateral
	}

	if err := e.recordBorrow(pool, amount); err != nil {
		return err
	}

	position, err := e.ensurePosition(u, a)
	if err != nil {
		return err
	}
	position.Borrowed = new(big.Int).Add(position.Borrowed, amount)
	position.Active = true
	position.LastUpdate = e.now().UTC()

	if err := e.state.PutPosition(position); err != nil {
		return err
	}
	if err := e.state.PutPool(pool); err != nil {
		return err
	}
	e.emit(events.LedgerMutation{Type: events.TypeBorrowed, User: u, Asset: a, Amount: new(big.Int).Set(amount)})
	return nil
}

// Repay reduces the caller's outstanding debt. Amounts above the debt are
// capped and the excess ignored; repaying with no debt is a no-op. The
// amount actually applied is returned.
func (e *Engine) Repay(user, asset string, amount *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	u, a, err := validateKeys(user, asset)
	if err != nil {
		return nil, err
	}
	if err := validateAmount(amount); err != nil {
		return nil, err
	}

	unlock := e.locks.acquire(userLockKey(u), assetLockKey(a))
	defer unlock()

	pool, err := e.loadPool(a)
	if err != nil {
		return nil, err
	}
	position, err := e.ensurePosition(u, a)
	if err != nil {
		return nil, err
	}

	repayAmount := new(big.Int).Set(amount)
	if repayAmount.Cmp(position.Borrowed) > 0 {
		repayAmount = new(big.Int).Set(position.Borrowed)
	}
	if repayAmount.Sign() == 0 {
		return big.NewInt(0), nil
	}

	if err := e.recordRepay(pool, repayAmount); err != nil {
		return nil, err
	}
	position.Borrowed = new(big.Int).Sub(position.Borrowed, repayAmount)
	position.LastUpdate = e.now().UTC()

	if err := e.state.PutPosition(position); err != nil {
		return nil, err
	}
	if err := e.state.PutPool(pool); err != nil {
		return nil, err
	}
	e.emit(events.LedgerMutation{Type: events.TypeRepaid, User: u, Asset: a, Amount: new(big.Int).Set(repayAmount)})
	return repayAmount, nil
}

// Withdraw releases supplied liquidity back to the caller. The withdrawal is
// rejected when it would leave the account liquidatable while any borrow is
// outstanding.
func (e *Engine) Withdraw(ctx context.Context, user, asset string, amount *big.Int) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	u, a, err := validateKeys(user, asset)
	if err != nil {
		return err
	}
	if err := validateAmount(amount); err != nil {
		return err
	}

	unlock := e.locks.acquire(userLockKey(u), assetLockKey(a))
	defer unlock()

	pool, err := e.loadPool(a)
	if err != nil {
		return err
	}
	position, err := e.ensurePosition(u, a)
	if err != nil {
		return err
	}
	if amount.Cmp(position.Supplied) > 0 {
		return ErrInsufficientBalance
	}
	if err := e.recordWithdraw(pool, amount); err != nil {
		return err
	}

	adjusted := position.Clone()
	adjusted.Supplied = new(big.Int).Sub(adjusted.Supplied, amount)
	limitUSD, borrowsUSD, err := e.accountSnapshot(ctx, u, adjusted)
	if err != nil {
		return err
	}
	if borrowsUSD.Sign() > 0 {
		health := healthFromSnapshot(limitUSD, borrowsUSD)
		if health.Cmp(big.NewInt(LiquidationThresholdBps)) < 0 {
			return ErrWouldTriggerLiquidation
		}
	}

	position.Supplied = adjusted.Supplied
	position.LastUpdate = e.now().UTC()

	if err := e.state.PutPosition(position); err != nil {
		return err
	}
	if err := e.state.PutPool(pool); err != nil {
		return err
	}
	e.emit(events.LedgerMutation{Type: events.TypeWithdrawn, User: u, Asset: a, Amount: new(big.Int).Set(amount)})
	return nil
}

// GetPosition returns a copy of the stored position, or nil when the user
// never touched the asset.
func (e *Engine) GetPosition(user, asset string) (*Position, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	u, a, err := validateKeys(user, asset)
	if err != nil {
		return nil, err
	}
	position, err := e.state.GetPosition(u, a)
	if err != nil {
		return nil, err
	}
	if position == nil {
		return nil, nil
	}
	position.ensureDefaults()
	return position.Clone(), nil
}

// HealthFactor reports the user's health in basis points across every asset:
// the ratio of borrow limit to current borrows, or MaxHealthFactorBps when
// nothing is borrowed.
func (e *Engine) HealthFactor(ctx context.Context, user string) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	u := normalizeUser(user)
	if u == "" {
		return nil, ErrInvalidUser
	}
	unlock := e.locks.acquire(userLockKey(u))
	defer unlock()

	limitUSD, borrowsUSD, err := e.accountSnapshot(ctx, u, nil)
	if err != nil {
		return nil, err
	}
	return healthFromSnapshot(limitUSD, borrowsUSD), nil
}

// BorrowLimit reports the USD value the user may borrow against, derived
// from supplied balances weighted by each pool's collateral factor.
func (e *Engine) BorrowLimit(ctx context.Context, user string) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	u := normalizeUser(user)
	if u == "" {
		return nil, ErrInvalidUser
	}
	unlock := e.locks.acquire(userLockKey(u))
	defer unlock()

	limitUSD, _, err := e.accountSnapshot(ctx, u, nil)
	if err != nil {
		return nil, err
	}
	return limitUSD, nil
}
