package events

import (
	"math/big"
	"strconv"
	"strings"
)

const (
	// TypePoolInitialized marks the creation of a new lending pool.
	TypePoolInitialized = "lending.pool_initialized"
	// TypeSupplied marks a deposit into a lending pool.
	TypeSupplied = "lending.supplied"
	// TypeBorrowed marks a draw against pooled liquidity.
	TypeBorrowed = "lending.borrowed"
	// TypeRepaid marks a debt repayment.
	TypeRepaid = "lending.repaid"
	// TypeWithdrawn marks a withdrawal of supplied liquidity.
	TypeWithdrawn = "lending.withdrawn"
	// TypeLiquidated marks a third-party liquidation of an unhealthy position.
	TypeLiquidated = "lending.liquidated"
	// TypeOracleError marks a failed or rejected price read.
	TypeOracleError = "lending.oracle_error"
	// TypeRatesUpdated marks a pool rate refresh.
	TypeRatesUpdated = "lending.rates_updated"
)

// PoolInitialized records the admin creation of a pool.
type PoolInitialized struct {
	Asset               string
	CollateralFactorBps uint64
}

// EventType satisfies the events.Event interface.
func (PoolInitialized) EventType() string { return TypePoolInitialized }

// Attributes satisfies the events.Event interface.
func (e PoolInitialized) Attributes() map[string]string {
	return map[string]string{
		"asset":               strings.ToUpper(strings.TrimSpace(e.Asset)),
		"collateralFactorBps": strconv.FormatUint(e.CollateralFactorBps, 10),
	}
}

// LedgerMutation captures the common fields for supply, borrow, repay and
// withdraw notifications.
type LedgerMutation struct {
	Type   string
	User   string
	Asset  string
	Amount *big.Int
}

// EventType satisfies the events.Event interface.
func (e LedgerMutation) EventType() string { return e.Type }

// Attributes satisfies the events.Event interface.
func (e LedgerMutation) Attributes() map[string]string {
	attrs := map[string]string{
		"user":  strings.TrimSpace(e.User),
		"asset": strings.ToUpper(strings.TrimSpace(e.Asset)),
	}
	if e.Amount != nil {
		attrs["amount"] = e.Amount.String()
	}
	return attrs
}

// OracleError records a price read that failed or returned unusable data.
type OracleError struct {
	Asset  string
	Reason string
}

// EventType satisfies the events.Event interface.
func (OracleError) EventType() string { return TypeOracleError }

// Attributes satisfies the events.Event interface.
func (e OracleError) Attributes() map[string]string {
	return map[string]string{
		"asset":  strings.ToUpper(strings.TrimSpace(e.Asset)),
		"reason": strings.TrimSpace(e.Reason),
	}
}

// RatesUpdated records the recomputed rates for a pool after a refresh.
type RatesUpdated struct {
	Asset          string
	UtilizationBps uint64
	BorrowRateBps  uint64
	SupplyRateBps  uint64
}

// EventType satisfies the events.Event interface.
func (RatesUpdated) EventType() string { return TypeRatesUpdated }

// Attributes satisfies the events.Event interface.
func (e RatesUpdated) Attributes() map[string]string {
	return map[string]string{
		"asset":          strings.ToUpper(strings.TrimSpace(e.Asset)),
		"utilizationBps": strconv.FormatUint(e.UtilizationBps, 10),
		"borrowRateBps":  strconv.FormatUint(e.BorrowRateBps, 10),
		"supplyRateBps":  strconv.FormatUint(e.SupplyRateBps, 10),
	}
}

// Liquidated records the outcome of a liquidation for analytics pipelines.
type Liquidated struct {
	Liquidator string
	Borrower   string
	Asset      string
	Repaid     *big.Int
	Seized     *big.Int
}

// EventType satisfies the events.Event interface.
func (Liquidated) EventType() string { return TypeLiquidated }

// Attributes satisfies the events.Event interface.
func (e Liquidated) Attributes() map[string]string {
	attrs := map[string]string{
		"liquidator": strings.TrimSpace(e.Liquidator),
		"borrower":   strings.TrimSpace(e.Borrower),
		"asset":      strings.ToUpper(strings.TrimSpace(e.Asset)),
	}
	if e.Repaid != nil {
		attrs["repaid"] = e.Repaid.String()
	}
	if e.Seized != nil {
		attrs["seized"] = e.Seized.String()
	}
	return attrs
}
