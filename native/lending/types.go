package lending

import (
	"math/big"
	"time"
)

const (
	// MaxCollateralFactorBps caps the fraction of supplied value counted
	// toward borrowing power.
	MaxCollateralFactorBps = 9000
	// LiquidationThresholdBps is the health factor below which a position
	// becomes liquidatable.
	LiquidationThresholdBps = 8000
	// LiquidationBonusBps is the collateral payout applied to liquidators,
	// expressed against the repaid debt value (110%).
	LiquidationBonusBps = 11000
	// MaxHealthFactorBps is reported for positions with no outstanding
	// borrows.
	MaxHealthFactorBps = 10000
)

var basisPoints = big.NewInt(10_000)

// Pool captures the aggregate accounting state for a single asset. Amount
// values are expressed as big integers in the asset's base units.
type Pool struct {
	// Asset is the canonical asset identifier the pool is keyed by.
	Asset string
	// TotalDeposits is the aggregate liquidity currently supplied by lenders.
	TotalDeposits *big.Int
	// TotalBorrows tracks the outstanding amount borrowed across all
	// positions. Never exceeds TotalDeposits.
	TotalBorrows *big.Int
	// UtilizationBps is TotalBorrows/TotalDeposits in basis points.
	UtilizationBps uint64
	// BorrowRateBps is the current borrow rate derived from utilization.
	BorrowRateBps uint64
	// SupplyRateBps is the current supply rate derived from utilization.
	SupplyRateBps uint64
	// CollateralFactorBps is the basis-point fraction of supplied value
	// counted toward borrowing power. At most MaxCollateralFactorBps.
	CollateralFactorBps uint64
	// Active gates all mutating operations against the pool.
	Active bool
	// LastUpdate records when totals or rates last changed.
	LastUpdate time.Time
}

// Clone returns a deep copy of the pool.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	clone := *p
	if p.TotalDeposits != nil {
		clone.TotalDeposits = new(big.Int).Set(p.TotalDeposits)
	}
	if p.TotalBorrows != nil {
		clone.TotalBorrows = new(big.Int).Set(p.TotalBorrows)
	}
	return &clone
}

// Position maintains the supplied and borrowed balances for one user in one
// pool. Positions are created lazily and never deleted; balances may return
// to zero.
type Position struct {
	User  string
	Asset string
	// Supplied is the balance deposited into the pool.
	Supplied *big.Int
	// Borrowed is the outstanding debt drawn against the user's collateral.
	Borrowed *big.Int
	// LastUpdate records the most recent mutation.
	LastUpdate time.Time
	// Active is set on first use and retained for the life of the position.
	Active bool
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := *p
	if p.Supplied != nil {
		clone.Supplied = new(big.Int).Set(p.Supplied)
	}
	if p.Borrowed != nil {
		clone.Borrowed = new(big.Int).Set(p.Borrowed)
	}
	return &clone
}

func (p *Position) ensureDefaults() {
	if p.Supplied == nil {
		p.Supplied = big.NewInt(0)
	}
	if p.Borrowed == nil {
		p.Borrowed = big.NewInt(0)
	}
}

func (p *Pool) ensureDefaults() {
	if p.TotalDeposits == nil {
		p.TotalDeposits = big.NewInt(0)
	}
	if p.TotalBorrows == nil {
		p.TotalBorrows = big.NewInt(0)
	}
}
