package observability

import (
	"crosslend/core/events"
)

// MetricsEmitter translates ledger and messaging events into Prometheus
// series. It is wired as the engine and reconciler event sink, optionally
// chaining to a downstream emitter.
type MetricsEmitter struct {
	next events.Emitter
}

// NewMetricsEmitter wraps the downstream emitter. A nil downstream records
// metrics only.
func NewMetricsEmitter(next events.Emitter) *MetricsEmitter {
	return &MetricsEmitter{next: next}
}

// Emit records metrics for the event and forwards it downstream.
func (m *MetricsEmitter) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	switch e := evt.(type) {
	case events.Liquidated:
		Engine().RecordLiquidation(e.Asset)
	case events.OracleError:
		Engine().RecordOracleError(e.Asset, e.Reason)
	case events.RatesUpdated:
		Engine().RecordPoolRates(e.Asset, e.BorrowRateBps, e.SupplyRateBps)
	case events.MessageSent:
		Messaging().RecordSent(e.Op)
	case events.MessageCompleted:
		Messaging().RecordCompleted(e.Op, e.Success)
	case events.MessageDuplicate:
		Messaging().RecordDuplicate()
	}
	if m.next != nil {
		m.next.Emit(evt)
	}
}
