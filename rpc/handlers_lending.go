package rpc

import (
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	nativecommon "crosslend/native/common"
	"crosslend/native/lending"
	"crosslend/observability"
)

type poolPayload struct {
	Asset               string `json:"asset"`
	TotalDeposits       string `json:"totalDeposits"`
	TotalBorrows        string `json:"totalBorrows"`
	UtilizationBps      uint64 `json:"utilizationBps"`
	BorrowRateBps       uint64 `json:"borrowRateBps"`
	SupplyRateBps       uint64 `json:"supplyRateBps"`
	CollateralFactorBps uint64 `json:"collateralFactorBps"`
	Active              bool   `json:"active"`
	LastUpdate          string `json:"lastUpdate"`
}

type positionPayload struct {
	User       string `json:"user"`
	Asset      string `json:"asset"`
	Supplied   string `json:"supplied"`
	Borrowed   string `json:"borrowed"`
	LastUpdate string `json:"lastUpdate"`
}

type ledgerRequest struct {
	User   string `json:"user"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type liquidateRequest struct {
	Liquidator string `json:"liquidator"`
	Borrower   string `json:"borrower"`
	Asset      string `json:"asset"`
	Amount     string `json:"amount"`
}

func poolToPayload(pool *lending.Pool) poolPayload {
	return poolPayload{
		Asset:               pool.Asset,
		TotalDeposits:       bigString(pool.TotalDeposits),
		TotalBorrows:        bigString(pool.TotalBorrows),
		UtilizationBps:      pool.UtilizationBps,
		BorrowRateBps:       pool.BorrowRateBps,
		SupplyRateBps:       pool.SupplyRateBps,
		CollateralFactorBps: pool.CollateralFactorBps,
		Active:              pool.Active,
		LastUpdate:          pool.LastUpdate.UTC().Format(time.RFC3339),
	}
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseAmount(raw string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return amount, nil
}

func (s *Server) handleInitializePool(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Asset               string `json:"asset"`
		CollateralFactorBps uint64 `json:"collateralFactorBps"`
	}
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.engine.InitializePool(req.Asset, req.CollateralFactorBps); err != nil {
		writeEngineError(w, err)
		return
	}
	pool, err := s.engine.GetPoolInfo(req.Asset)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, poolToPayload(pool))
}

func (s *Server) handleSetPoolActive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Active bool `json:"active"`
	}
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	asset := chi.URLParam(r, "asset")
	if err := s.engine.SetPoolActive(asset, req.Active); err != nil {
		writeEngineError(w, err)
		return
	}
	pool, err := s.engine.GetPoolInfo(asset)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, poolToPayload(pool))
}

func (s *Server) handleListPools(w http.ResponseWriter, _ *http.Request) {
	pools, err := s.engine.ListPools()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	payload := make([]poolPayload, 0, len(pools))
	for _, pool := range pools {
		payload = append(payload, poolToPayload(pool))
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleGetPool(w http.ResponseWriter, r *http.Request) {
	pool, err := s.engine.GetPoolInfo(chi.URLParam(r, "asset"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, poolToPayload(pool))
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	position, err := s.engine.GetPosition(chi.URLParam(r, "user"), chi.URLParam(r, "asset"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if position == nil {
		writeError(w, http.StatusNotFound, errors.New("position not found"))
		return
	}
	writeJSON(w, http.StatusOK, positionPayload{
		User:       position.User,
		Asset:      position.Asset,
		Supplied:   bigString(position.Supplied),
		Borrowed:   bigString(position.Borrowed),
		LastUpdate: position.LastUpdate.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleHealthFactor(w http.ResponseWriter, r *http.Request) {
	health, err := s.engine.HealthFactor(r.Context(), chi.URLParam(r, "user"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"healthFactorBps": bigString(health)})
}

func (s *Server) handleBorrowLimit(w http.ResponseWriter, r *http.Request) {
	limit, err := s.engine.BorrowLimit(r.Context(), chi.URLParam(r, "user"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"borrowLimitUsd": bigString(limit)})
}

func (s *Server) handleSupply(w http.ResponseWriter, r *http.Request) {
	s.handleLedgerOp(w, r, "supply", func(req ledgerRequest, amount *big.Int) error {
		return s.engine.Supply(req.User, req.Asset, amount)
	})
}

func (s *Server) handleBorrow(w http.ResponseWriter, r *http.Request) {
	s.handleLedgerOp(w, r, "borrow", func(req ledgerRequest, amount *big.Int) error {
		return s.engine.Borrow(r.Context(), req.User, req.Asset, amount)
	})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	s.handleLedgerOp(w, r, "withdraw", func(req ledgerRequest, amount *big.Int) error {
		return s.engine.Withdraw(r.Context(), req.User, req.Asset, amount)
	})
}

func (s *Server) handleRepay(w http.ResponseWriter, r *http.Request) {
	var req ledgerRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	start := time.Now()
	repaid, opErr := s.engine.Repay(req.User, req.Asset, amount)
	observability.Engine().ObserveOperation("repay", time.Since(start), opErr)
	if opErr != nil {
		writeEngineError(w, opErr)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"repaid": bigString(repaid)})
}

func (s *Server) handleLedgerOp(w http.ResponseWriter, r *http.Request, name string, apply func(ledgerRequest, *big.Int) error) {
	var req ledgerRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	start := time.Now()
	opErr := apply(req, amount)
	observability.Engine().ObserveOperation(name, time.Since(start), opErr)
	if opErr != nil {
		writeEngineError(w, opErr)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLiquidate(w http.ResponseWriter, r *http.Request) {
	var req liquidateRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	start := time.Now()
	repaid, seized, opErr := s.engine.Liquidate(r.Context(), req.Liquidator, req.Borrower, req.Asset, amount)
	observability.Engine().ObserveOperation("liquidate", time.Since(start), opErr)
	if opErr != nil {
		writeEngineError(w, opErr)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"repaid": bigString(repaid),
		"seized": bigString(seized),
	})
}

func (s *Server) handleCheckUpkeep(w http.ResponseWriter, _ *http.Request) {
	due, err := s.engine.CheckUpkeep()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"due": due})
}

func (s *Server) handlePerformUpkeep(w http.ResponseWriter, _ *http.Request) {
	if err := s.engine.PerformUpkeep(); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeEngineError maps engine sentinels onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, lending.ErrInvalidAmount),
		errors.Is(err, lending.ErrInvalidAsset),
		errors.Is(err, lending.ErrInvalidUser),
		errors.Is(err, lending.ErrInvalidCollateralFactor):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, lending.ErrPoolNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, lending.ErrAlreadyInitialized):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, lending.ErrPoolInactive),
		errors.Is(err, lending.ErrInsufficientLiquidity),
		errors.Is(err, lending.ErrInsufficientCollateral),
		errors.Is(err, lending.ErrInsufficientBalance),
		errors.Is(err, lending.ErrWouldTriggerLiquidation),
		errors.Is(err, lending.ErrPositionHealthy),
		errors.Is(err, lending.ErrUpkeepNotDue):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, lending.ErrOracleUnavailable),
		errors.Is(err, nativecommon.ErrModulePaused):
		writeError(w, http.StatusServiceUnavailable, err)
	case errors.Is(err, lending.ErrInvalidPriceData):
		writeError(w, http.StatusBadGateway, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}
