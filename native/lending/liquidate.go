package lending

import (
	"context"
	"math/big"

	"crosslend/core/events"
	nativecommon "crosslend/native/common"
)

var liquidationBonus = big.NewInt(LiquidationBonusBps)

// Liquidate lets a third party repay part of an unhealthy borrower's debt in
// exchange for a bonus-priced share of the borrower's collateral in the same
// asset. The repaid debt and seized collateral amounts are returned.
//
// The seizure never drives the borrower's supplied balance negative; when the
// bonus-priced claim exceeds the collateral the payout is capped instead.
func (e *Engine) Liquidate(ctx context.Context, liquidator, borrower, asset string, amount *big.Int) (*big.Int, *big.Int, error) {
	if e == nil || e.state == nil {
		return nil, nil, ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, nil, err
	}
	liq := normalizeUser(liquidator)
	if liq == "" {
		return nil, nil, ErrInvalidUser
	}
	bor, a, err := validateKeys(borrower, asset)
	if err != nil {
		return nil, nil, err
	}
	if err := validateAmount(amount); err != nil {
		return nil, nil, err
	}

	unlock := e.locks.acquire(userLockKey(liq), userLockKey(bor), assetLockKey(a))
	defer unlock()

	pool, err := e.loadPool(a)
	if err != nil {
		return nil, nil, err
	}
	if !pool.Active {
		return nil, nil, ErrPoolInactive
	}

	limitUSD, borrowsUSD, err := e.accountSnapshot(ctx, bor, nil)
	if err != nil {
		return nil, nil, err
	}
	health := healthFromSnapshot(limitUSD, borrowsUSD)
	if health.Cmp(big.NewInt(LiquidationThresholdBps)) >= 0 {
		return nil, nil, ErrPositionHealthy
	}

	borrowerPos, err := e.ensurePosition(bor, a)
	if err != nil {
		return nil, nil, err
	}
	repayAmount := new(big.Int).Set(amount)
	if repayAmount.Cmp(borrowerPos.Borrowed) > 0 {
		repayAmount = new(big.Int).Set(borrowerPos.Borrowed)
	}
	if repayAmount.Sign() == 0 {
		return nil, nil, ErrPositionHealthy
	}

	price, err := e.fetchPrice(ctx, a)
	if err != nil {
		return nil, nil, err
	}

	// Debt and bonus are valued through the oracle so the computation holds
	// when the payout asset is later generalized beyond the debt asset.
	debtUSD := new(big.Int).Mul(repayAmount, price)
	bonusUSD := new(big.Int).Mul(debtUSD, liquidationBonus)
	bonusUSD.Quo(bonusUSD, basisPoints)
	seizeAmount := new(big.Int).Quo(bonusUSD, price)
	if seizeAmount.Cmp(borrowerPos.Supplied) > 0 {
		seizeAmount = new(big.Int).Set(borrowerPos.Supplied)
	}

	if err := e.recordRepay(pool, repayAmount); err != nil {
		return nil, nil, err
	}

	borrowerPos.Borrowed = new(big.Int).Sub(borrowerPos.Borrowed, repayAmount)
	borrowerPos.Supplied = new(big.Int).Sub(borrowerPos.Supplied, seizeAmount)
	borrowerPos.LastUpdate = e.now().UTC()

	liquidatorPos, err := e.ensurePosition(liq, a)
	if err != nil {
		return nil, nil, err
	}
	liquidatorPos.Supplied = new(big.Int).Add(liquidatorPos.Supplied, seizeAmount)
	liquidatorPos.Active = true
	liquidatorPos.LastUpdate = e.now().UTC()

	if err := e.state.PutPosition(borrowerPos); err != nil {
		return nil, nil, err
	}
	if err := e.state.PutPosition(liquidatorPos); err != nil {
		return nil, nil, err
	}
	if err := e.state.PutPool(pool); err != nil {
		return nil, nil, err
	}

	e.emit(events.Liquidated{
		Liquidator: liq,
		Borrower:   bor,
		Asset:      a,
		Repaid:     new(big.Int).Set(repayAmount),
		Seized:     new(big.Int).Set(seizeAmount),
	})
	return repayAmount, seizeAmount, nil
}
