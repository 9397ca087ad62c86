package lending

import "math/big"

// The rate curve is linear in utilization: a 2% base borrow rate rising by up
// to 8% at full utilization, with suppliers earning the borrow rate scaled by
// utilization.
const (
	baseBorrowRateBps      = 200
	borrowRateSlopeBps     = 800
	utilizationDenominator = 10_000
)

// Rates derives the borrow and supply rates for the given utilization. Pure
// and deterministic; callers feed it the pool utilization after every
// aggregate mutation.
func Rates(utilizationBps uint64) (borrowRateBps, supplyRateBps uint64) {
	if utilizationBps > utilizationDenominator {
		utilizationBps = utilizationDenominator
	}
	borrowRateBps = baseBorrowRateBps + utilizationBps*borrowRateSlopeBps/utilizationDenominator
	supplyRateBps = borrowRateBps * utilizationBps / utilizationDenominator
	return borrowRateBps, supplyRateBps
}

// Utilization computes TotalBorrows/TotalDeposits in basis points, defined as
// zero when no deposits exist.
func Utilization(totalBorrows, totalDeposits *big.Int) uint64 {
	if totalDeposits == nil || totalDeposits.Sign() == 0 {
		return 0
	}
	if totalBorrows == nil || totalBorrows.Sign() <= 0 {
		return 0
	}
	scaled := new(big.Int).Mul(totalBorrows, basisPoints)
	scaled.Quo(scaled, totalDeposits)
	if !scaled.IsUint64() {
		return utilizationDenominator
	}
	return scaled.Uint64()
}
