package lending

import (
	"context"
	"errors"
	"math/big"
	"sort"
	"testing"
	"time"

	"crosslend/core/events"
	nativecommon "crosslend/native/common"
	"crosslend/native/oracle"
)

type mockState struct {
	pools      map[string]*Pool
	positions  map[string]*Position
	assets     map[string][]string
	lastUpkeep time.Time

	putPoolErr     error
	putPositionErr error
}

func newMockState() *mockState {
	return &mockState{
		pools:     make(map[string]*Pool),
		positions: make(map[string]*Position),
		assets:    make(map[string][]string),
	}
}

func positionID(user, asset string) string { return asset + "/" + user }

func (m *mockState) GetPool(asset string) (*Pool, error) {
	return m.pools[asset].Clone(), nil
}

func (m *mockState) PutPool(pool *Pool) error {
	if m.putPoolErr != nil {
		return m.putPoolErr
	}
	m.pools[pool.Asset] = pool.Clone()
	return nil
}

func (m *mockState) ListPools() ([]*Pool, error) {
	keys := make([]string, 0, len(m.pools))
	for asset := range m.pools {
		keys = append(keys, asset)
	}
	sort.Strings(keys)
	pools := make([]*Pool, 0, len(keys))
	for _, asset := range keys {
		pools = append(pools, m.pools[asset].Clone())
	}
	return pools, nil
}

func (m *mockState) GetPosition(user, asset string) (*Position, error) {
	return m.positions[positionID(user, asset)].Clone(), nil
}

func (m *mockState) PutPosition(position *Position) error {
	if m.putPositionErr != nil {
		return m.putPositionErr
	}
	m.positions[positionID(position.User, position.Asset)] = position.Clone()
	for _, existing := range m.assets[position.User] {
		if existing == position.Asset {
			return nil
		}
	}
	m.assets[position.User] = append(m.assets[position.User], position.Asset)
	sort.Strings(m.assets[position.User])
	return nil
}

func (m *mockState) UserAssets(user string) ([]string, error) {
	return append([]string(nil), m.assets[user]...), nil
}

func (m *mockState) LastUpkeep() (time.Time, error) { return m.lastUpkeep, nil }

func (m *mockState) SetLastUpkeep(ts time.Time) error {
	m.lastUpkeep = ts
	return nil
}

type stubOracle struct {
	quotes map[string]oracle.PriceQuote
	err    error
}

func newStubOracle() *stubOracle {
	return &stubOracle{quotes: make(map[string]oracle.PriceQuote)}
}

// setPrice stores a fresh quote at the given whole-dollar price.
func (o *stubOracle) setPrice(asset string, usd int64) {
	price := new(big.Int).Mul(big.NewInt(usd), big.NewInt(100_000_000))
	o.quotes[asset] = oracle.PriceQuote{
		Asset:     asset,
		PriceUSD:  price,
		Timestamp: time.Now(),
		Valid:     true,
		Source:    "stub",
	}
}

func (o *stubOracle) markInvalid(asset string) {
	quote := o.quotes[asset]
	quote.Valid = false
	o.quotes[asset] = quote
}

func (o *stubOracle) GetPrice(_ context.Context, asset string) (oracle.PriceQuote, error) {
	if o.err != nil {
		return oracle.PriceQuote{}, o.err
	}
	quote, ok := o.quotes[asset]
	if !ok {
		return oracle.PriceQuote{}, oracle.ErrNoFreshQuote
	}
	return quote, nil
}

type pausedModules map[string]bool

func (p pausedModules) IsPaused(module string) bool { return p[module] }

func newTestEngine(t *testing.T) (*Engine, *mockState, *stubOracle) {
	t.Helper()
	state := newMockState()
	prices := newStubOracle()
	engine := NewEngine(state, prices)
	return engine, state, prices
}

func mustInitPool(t *testing.T, engine *Engine, asset string, cfBps uint64) {
	t.Helper()
	if err := engine.InitializePool(asset, cfBps); err != nil {
		t.Fatalf("initialize pool %s: %v", asset, err)
	}
}

func mustSupply(t *testing.T, engine *Engine, user, asset string, amount int64) {
	t.Helper()
	if err := engine.Supply(user, asset, big.NewInt(amount)); err != nil {
		t.Fatalf("supply %d %s for %s: %v", amount, asset, user, err)
	}
}

func TestInitializePool(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	capture := &events.Capture{}
	engine.SetEmitter(capture)

	mustInitPool(t, engine, "eth", 7500)

	pool, err := engine.GetPoolInfo("ETH")
	if err != nil {
		t.Fatalf("get pool: %v", err)
	}
	if pool.Asset != "ETH" {
		t.Fatalf("expected normalized asset ETH, got %s", pool.Asset)
	}
	if !pool.Active {
		t.Fatalf("expected new pool to be active")
	}
	if pool.CollateralFactorBps != 7500 {
		t.Fatalf("unexpected collateral factor %d", pool.CollateralFactorBps)
	}
	if pool.BorrowRateBps != 200 || pool.SupplyRateBps != 0 {
		t.Fatalf("expected base rates at zero utilization, got borrow=%d supply=%d", pool.BorrowRateBps, pool.SupplyRateBps)
	}
	if len(capture.Events) != 1 || capture.Events[0].EventType() != events.TypePoolInitialized {
		t.Fatalf("expected pool initialized event, got %+v", capture.Events)
	}

	if err := engine.InitializePool("ETH", 5000); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}
	if err := engine.InitializePool("BTC", MaxCollateralFactorBps+1); !errors.Is(err, ErrInvalidCollateralFactor) {
		t.Fatalf("expected ErrInvalidCollateralFactor, got %v", err)
	}
}

func TestSetPoolActiveGatesMutations(t *testing.T) {
	engine, _, prices := newTestEngine(t)
	mustInitPool(t, engine, "ETH", 7500)
	prices.setPrice("ETH", 2000)

	if err := engine.SetPoolActive("ETH", false); err != nil {
		t.Fatalf("deactivate pool: %v", err)
	}
	if err := engine.Supply("alice", "ETH", big.NewInt(10)); !errors.Is(err, ErrPoolInactive) {
		t.Fatalf("expected ErrPoolInactive, got %v", err)
	}
	if err := engine.SetPoolActive("ETH", true); err != nil {
		t.Fatalf("reactivate pool: %v", err)
	}
	mustSupply(t, engine, "alice", "ETH", 10)
}

func TestSupplyValidation(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	mustInitPool(t, engine, "ETH", 7500)

	if err := engine.Supply("alice", "ETH", big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for zero, got %v", err)
	}
	if err := engine.Supply("alice", "ETH", big.NewInt(-5)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for negative, got %v", err)
	}
	if err := engine.Supply("  ", "ETH", big.NewInt(1)); !errors.Is(err, ErrInvalidUser) {
		t.Fatalf("expected ErrInvalidUser, got %v", err)
	}
	if err := engine.Supply("alice", " ", big.NewInt(1)); !errors.Is(err, ErrInvalidAsset) {
		t.Fatalf("expected ErrInvalidAsset, got %v", err)
	}
	if err := engine.Supply("alice", "DOGE", big.NewInt(1)); !errors.Is(err, ErrPoolNotFound) {
		t.Fatalf("expected ErrPoolNotFound, got %v", err)
	}
}

func TestSupplyUpdatesPoolAndPosition(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	capture := &events.Capture{}
	engine.SetEmitter(capture)
	mustInitPool(t, engine, "ETH", 7500)

	mustSupply(t, engine, "alice", "eth", 100)
	mustSupply(t, engine, "alice", "ETH", 50)

	pool, err := engine.GetPoolInfo("ETH")
	if err != nil {
		t.Fatalf("get pool: %v", err)
	}
	if pool.TotalDeposits.Cmp(big.NewInt(150)) != 0 {
		t.Fatalf("expected total deposits 150, got %s", pool.TotalDeposits)
	}
	if pool.UtilizationBps != 0 {
		t.Fatalf("expected zero utilization, got %d", pool.UtilizationBps)
	}

	position, err := engine.GetPosition("alice", "ETH")
	if err != nil {
		t.Fatalf("get position: %v", err)
	}
	if position == nil || position.Supplied.Cmp(big.NewInt(150)) != 0 {
		t.Fatalf("unexpected position %+v", position)
	}

	var supplied int
	for _, evt := range capture.Events {
		if evt.EventType() == events.TypeSupplied {
			supplied++
		}
	}
	if supplied != 2 {
		t.Fatalf("expected 2 supplied events, got %d", supplied)
	}
}

func TestPauseGuardBlocksMutations(t *testing.T) {
	engine, _, prices := newTestEngine(t)
	mustInitPool(t, engine, "ETH", 7500)
	prices.setPrice("ETH", 2000)
	mustSupply(t, engine, "alice", "ETH", 10)

	engine.SetPauses(pausedModules{"lending": true})

	if err := engine.Supply("alice", "ETH", big.NewInt(1)); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused on supply, got %v", err)
	}
	if err := engine.Borrow(context.Background(), "alice", "ETH", big.NewInt(1)); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused on borrow, got %v", err)
	}
	if _, err := engine.Repay("alice", "ETH", big.NewInt(1)); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused on repay, got %v", err)
	}
	if err := engine.PerformUpkeep(); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused on upkeep, got %v", err)
	}

	// Reads stay available while paused.
	if _, err := engine.GetPoolInfo("ETH"); err != nil {
		t.Fatalf("expected read to pass while paused: %v", err)
	}
}

func TestOracleFailureModes(t *testing.T) {
	engine, _, prices := newTestEngine(t)
	mustInitPool(t, engine, "ETH", 7500)
	prices.setPrice("ETH", 2000)
	mustSupply(t, engine, "alice", "ETH", 10)

	capture := &events.Capture{}
	engine.SetEmitter(capture)

	prices.err = oracle.ErrUnavailable
	if err := engine.Borrow(context.Background(), "alice", "ETH", big.NewInt(1)); !errors.Is(err, ErrOracleUnavailable) {
		t.Fatalf("expected ErrOracleUnavailable, got %v", err)
	}

	prices.err = context.DeadlineExceeded
	if err := engine.Borrow(context.Background(), "alice", "ETH", big.NewInt(1)); !errors.Is(err, ErrOracleUnavailable) {
		t.Fatalf("expected ErrOracleUnavailable on deadline, got %v", err)
	}

	prices.err = nil
	prices.markInvalid("ETH")
	if err := engine.Borrow(context.Background(), "alice", "ETH", big.NewInt(1)); !errors.Is(err, ErrInvalidPriceData) {
		t.Fatalf("expected ErrInvalidPriceData, got %v", err)
	}

	var reasons []string
	for _, evt := range capture.Events {
		if evt.EventType() == events.TypeOracleError {
			reasons = append(reasons, evt.Attributes()["reason"])
		}
	}
	want := []string{"unavailable", "unavailable", "invalid"}
	if len(reasons) != len(want) {
		t.Fatalf("expected %v oracle error events, got %v", want, reasons)
	}
	for i := range want {
		if reasons[i] != want[i] {
			t.Fatalf("expected %v oracle error events, got %v", want, reasons)
		}
	}
}
