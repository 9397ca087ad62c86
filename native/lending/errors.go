package lending

import "errors"

var (
	// ErrNilState is returned when the engine has no persistence wired.
	ErrNilState = errors.New("lending engine: state not configured")
	// ErrAlreadyInitialized is returned when a pool exists for the asset.
	ErrAlreadyInitialized = errors.New("lending engine: pool already initialised")
	// ErrInvalidCollateralFactor rejects collateral factors above the cap.
	ErrInvalidCollateralFactor = errors.New("lending engine: collateral factor exceeds cap")
	// ErrPoolNotFound is returned when the asset has no initialised pool.
	ErrPoolNotFound = errors.New("lending engine: pool not initialised")
	// ErrPoolInactive rejects mutations against a deactivated pool.
	ErrPoolInactive = errors.New("lending engine: pool inactive")
	// ErrInvalidAmount rejects zero or negative amounts.
	ErrInvalidAmount = errors.New("lending engine: amount must be positive")
	// ErrInvalidAsset rejects empty asset identifiers.
	ErrInvalidAsset = errors.New("lending engine: asset required")
	// ErrInvalidUser rejects empty user identifiers.
	ErrInvalidUser = errors.New("lending engine: user required")
	// ErrInsufficientLiquidity is returned when a borrow or withdrawal would
	// push outstanding borrows above pooled deposits.
	ErrInsufficientLiquidity = errors.New("lending engine: insufficient liquidity")
	// ErrInsufficientCollateral is returned when a borrow would exceed the
	// caller's borrow limit.
	ErrInsufficientCollateral = errors.New("lending engine: insufficient collateral")
	// ErrInsufficientBalance is returned when a withdrawal exceeds the
	// supplied balance.
	ErrInsufficientBalance = errors.New("lending engine: insufficient balance")
	// ErrWouldTriggerLiquidation guards withdrawals that would leave the
	// position liquidatable.
	ErrWouldTriggerLiquidation = errors.New("lending engine: withdrawal would trigger liquidation")
	// ErrPositionHealthy rejects liquidation of positions above the
	// liquidation threshold.
	ErrPositionHealthy = errors.New("lending engine: borrower not eligible for liquidation")
	// ErrInvalidPriceData is returned when the oracle reports an invalid or
	// non-positive price.
	ErrInvalidPriceData = errors.New("lending engine: invalid oracle price data")
	// ErrOracleUnavailable is returned when the oracle cannot answer before
	// the configured deadline.
	ErrOracleUnavailable = errors.New("lending engine: oracle unavailable")
	// ErrUpkeepNotDue is returned when upkeep runs before the interval
	// elapses.
	ErrUpkeepNotDue = errors.New("lending engine: upkeep not due")
)
