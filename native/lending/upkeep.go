package lending

import (
	"crosslend/core/events"
	nativecommon "crosslend/native/common"
)

// CheckUpkeep reports whether the global rate refresh interval has elapsed
// since the last run. A zero marker (no upkeep recorded yet) counts as due.
func (e *Engine) CheckUpkeep() (bool, error) {
	if e == nil || e.state == nil {
		return false, ErrNilState
	}
	last, err := e.state.LastUpkeep()
	if err != nil {
		return false, err
	}
	if last.IsZero() {
		return true, nil
	}
	return e.now().Sub(last) > e.upkeepInterval, nil
}

// PerformUpkeep recomputes rates for every active pool and resets the global
// marker. Calls before the interval elapses fail with ErrUpkeepNotDue,
// protecting against redundant external triggers.
func (e *Engine) PerformUpkeep() error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	due, err := e.CheckUpkeep()
	if err != nil {
		return err
	}
	if !due {
		return ErrUpkeepNotDue
	}

	pools, err := e.state.ListPools()
	if err != nil {
		return err
	}
	for _, pool := range pools {
		if pool == nil || !pool.Active {
			continue
		}
		unlock := e.locks.acquire(assetLockKey(pool.Asset))
		current, err := e.loadPool(pool.Asset)
		if err != nil {
			unlock()
			return err
		}
		e.refreshRates(current)
		if err := e.state.PutPool(current); err != nil {
			unlock()
			return err
		}
		unlock()
		e.emit(events.RatesUpdated{
			Asset:          current.Asset,
			UtilizationBps: current.UtilizationBps,
			BorrowRateBps:  current.BorrowRateBps,
			SupplyRateBps:  current.SupplyRateBps,
		})
	}
	return e.state.SetLastUpkeep(e.now().UTC())
}
