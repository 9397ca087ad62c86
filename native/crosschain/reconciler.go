package crosschain

import (
	"context"
	"log/slog"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"crosslend/core/events"
	nativecommon "crosslend/native/common"
	"crosslend/native/oracle"
)

const moduleName = "crosschain"

const defaultSendTimeout = 10 * time.Second

// reconcilerState is the persistence boundary for requests and registered
// domains. The production implementation lives in core/state.
type reconcilerState interface {
	GetRequest(messageID string) (*Request, error)
	PutRequest(request *Request) error
	HasDomain(domain uint64) (bool, error)
	PutDomain(domain uint64) error
	ListDomains() ([]uint64, error)
}

// Ledger is the slice of the lending engine the reconciler drives. Inbound
// messages mutate state through these methods only, so remote operations
// share the exact locking and validation path of direct calls.
type Ledger interface {
	Supply(user, asset string, amount *big.Int) error
	Borrow(ctx context.Context, user, asset string, amount *big.Int) error
	Repay(user, asset string, amount *big.Int) (*big.Int, error)
	Withdraw(ctx context.Context, user, asset string, amount *big.Int) error
}

// Reconciler encodes outbound operation requests, applies inbound messages
// idempotently and tracks fulfillment per message id.
type Reconciler struct {
	state       reconcilerState
	ledger      Ledger
	transport   Transport
	emitter     events.Emitter
	pauses      nativecommon.PauseView
	logger      *slog.Logger
	sendTimeout time.Duration
	now         func() time.Time

	mu       sync.Mutex
	inflight map[string]*sync.Mutex
}

// NewReconciler constructs a reconciler over the given state, ledger and
// transport.
func NewReconciler(state reconcilerState, ledger Ledger, transport Transport) *Reconciler {
	return &Reconciler{
		state:       state,
		ledger:      ledger,
		transport:   transport,
		emitter:     events.NoopEmitter{},
		sendTimeout: defaultSendTimeout,
		now:         time.Now,
		inflight:    make(map[string]*sync.Mutex),
	}
}

// SetEmitter wires the reconciler to an event sink.
func (r *Reconciler) SetEmitter(emitter events.Emitter) {
	if r == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	r.emitter = emitter
}

// SetPauses wires the operator pause switchboard.
func (r *Reconciler) SetPauses(p nativecommon.PauseView) {
	if r == nil {
		return
	}
	r.pauses = p
}

// SetLogger attaches a structured logger for message auditing.
func (r *Reconciler) SetLogger(logger *slog.Logger) {
	if r == nil {
		return
	}
	r.logger = logger
}

// SetSendTimeout bounds outbound transport calls.
func (r *Reconciler) SetSendTimeout(timeout time.Duration) {
	if r == nil || timeout <= 0 {
		return
	}
	r.sendTimeout = timeout
}

// SetClock overrides the time source. Test hook.
func (r *Reconciler) SetClock(now func() time.Time) {
	if r == nil || now == nil {
		return
	}
	r.now = now
}

// AddSupportedDomain registers a remote domain as a valid target for
// outbound operations. Registration is idempotent.
func (r *Reconciler) AddSupportedDomain(domain uint64) error {
	if r == nil || r.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(r.pauses, moduleName); err != nil {
		return err
	}
	return r.state.PutDomain(domain)
}

// SupportedDomains lists the registered domains in ascending order.
func (r *Reconciler) SupportedDomains() ([]uint64, error) {
	if r == nil || r.state == nil {
		return nil, ErrNilState
	}
	domains, err := r.state.ListDomains()
	if err != nil {
		return nil, err
	}
	sort.Slice(domains, func(i, j int) bool { return domains[i] < domains[j] })
	return domains, nil
}

// GetRequest returns a copy of the tracked request, or nil when the message
// id is unknown.
func (r *Reconciler) GetRequest(messageID string) (*Request, error) {
	if r == nil || r.state == nil {
		return nil, ErrNilState
	}
	request, err := r.state.GetRequest(strings.TrimSpace(messageID))
	if err != nil {
		return nil, err
	}
	return request.Clone(), nil
}

// InitiateOp encodes the operation, hands it to the transport and records the
// request under the transport-assigned message id. The request stays in the
// sent state until a message with the same id is received; there is no
// automatic timeout or retry.
func (r *Reconciler) InitiateOp(ctx context.Context, targetDomain uint64, initiator, asset string, amount *big.Int, op OpType) (string, error) {
	if r == nil || r.state == nil {
		return "", ErrNilState
	}
	if r.transport == nil {
		return "", ErrNilTransport
	}
	if err := nativecommon.Guard(r.pauses, moduleName); err != nil {
		return "", err
	}
	known, err := r.state.HasDomain(targetDomain)
	if err != nil {
		return "", err
	}
	if !known {
		return "", ErrUnknownDomain
	}

	payload := Payload{
		SourceDomain: targetDomain,
		Initiator:    strings.TrimSpace(initiator),
		Asset:        oracle.NormalizeAsset(asset),
		Amount:       amount,
		Op:           op,
	}
	encoded, err := EncodePayload(payload)
	if err != nil {
		return "", err
	}

	sendCtx := ctx
	if r.sendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, r.sendTimeout)
		defer cancel()
	}
	messageID, err := r.transport.Send(sendCtx, targetDomain, encoded)
	if err != nil {
		return "", err
	}

	// A loopback-style transport may have already delivered and fulfilled
	// the message before Send returns; never regress the stored record.
	if existing, err := r.state.GetRequest(messageID); err != nil {
		return "", err
	} else if existing == nil {
		request := &Request{
			MessageID:    messageID,
			SourceDomain: targetDomain,
			Initiator:    payload.Initiator,
			Asset:        payload.Asset,
			Amount:       new(big.Int).Set(amount),
			Op:           op,
			Fulfilled:    false,
			CreatedAt:    r.now().UTC(),
		}
		if err := r.state.PutRequest(request); err != nil {
			return "", err
		}
	}

	if r.logger != nil {
		r.logger.Info("crosschain message sent",
			"messageId", messageID,
			"targetDomain", targetDomain,
			"op", op.String(),
			"digest", PayloadDigest(encoded),
		)
	}
	r.emitter.Emit(events.MessageSent{
		MessageID:    messageID,
		TargetDomain: targetDomain,
		Initiator:    payload.Initiator,
		Asset:        payload.Asset,
		Amount:       new(big.Int).Set(amount),
		Op:           op.String(),
	})
	return messageID, nil
}

// OnMessage applies an inbound cross-chain operation. Processing is
// idempotent: a message id that was already fulfilled returns success without
// touching the ledger. Ledger rejections do not propagate to the transport;
// the request is marked fulfilled either way and the outcome is surfaced
// through the completion event, so a failed remote mutation can never leave a
// message permanently in flight.
func (r *Reconciler) OnMessage(ctx context.Context, messageID string, sourceDomain uint64, sender, asset string, amount *big.Int, op OpType) error {
	if r == nil || r.state == nil {
		return ErrNilState
	}
	id := strings.TrimSpace(messageID)
	if id == "" {
		return ErrInvalidMessage
	}

	release := r.lockMessage(id)
	defer release()

	existing, err := r.state.GetRequest(id)
	if err != nil {
		return err
	}
	if existing != nil && existing.Fulfilled {
		r.emitter.Emit(events.MessageDuplicate{
			MessageID:    id,
			SourceDomain: sourceDomain,
			Op:           existing.Op.String(),
		})
		return nil
	}

	applyErr := r.apply(ctx, sender, asset, amount, op)

	request := existing
	if request == nil {
		request = &Request{
			MessageID:    id,
			SourceDomain: sourceDomain,
			Initiator:    strings.TrimSpace(sender),
			Asset:        oracle.NormalizeAsset(asset),
			Amount:       cloneAmount(amount),
			Op:           op,
			CreatedAt:    r.now().UTC(),
		}
	}
	request.Fulfilled = true
	if err := r.state.PutRequest(request); err != nil {
		return err
	}

	reason := ""
	if applyErr != nil {
		reason = applyErr.Error()
	}
	if r.logger != nil {
		r.logger.Info("crosschain message completed",
			"messageId", id,
			"sourceDomain", sourceDomain,
			"op", op.String(),
			"success", applyErr == nil,
		)
	}
	r.emitter.Emit(events.MessageCompleted{
		MessageID:    id,
		SourceDomain: sourceDomain,
		Sender:       strings.TrimSpace(sender),
		Asset:        oracle.NormalizeAsset(asset),
		Amount:       cloneAmount(amount),
		Op:           op.String(),
		Success:      applyErr == nil,
		Reason:       reason,
	})
	return nil
}

// HandleInbound adapts transport deliveries of encoded payloads onto
// OnMessage. It is the InboundHandler wired into the transport.
func (r *Reconciler) HandleInbound(ctx context.Context, messageID string, sourceDomain uint64, payload []byte) error {
	decoded, err := DecodePayload(payload)
	if err != nil {
		// A payload that cannot be decoded can never succeed; consume the
		// message and surface the failure through the completion event.
		return r.OnMessage(ctx, messageID, sourceDomain, "", "", nil, 0)
	}
	return r.OnMessage(ctx, messageID, sourceDomain, decoded.Initiator, decoded.Asset, decoded.Amount, decoded.Op)
}

func (r *Reconciler) apply(ctx context.Context, sender, asset string, amount *big.Int, op OpType) error {
	if r.ledger == nil {
		return ErrNilState
	}
	switch op {
	case OpSupply:
		return r.ledger.Supply(sender, asset, amount)
	case OpBorrow:
		return r.ledger.Borrow(ctx, sender, asset, amount)
	case OpRepay:
		_, err := r.ledger.Repay(sender, asset, amount)
		return err
	case OpWithdraw:
		return r.ledger.Withdraw(ctx, sender, asset, amount)
	default:
		return ErrUnknownOp
	}
}

// lockMessage serializes processing per message id so concurrent duplicate
// deliveries cannot both observe the unfulfilled state. Distinct ids proceed
// in parallel and contend only on the ledger's own keyed locks. The map entry
// is dropped on release; a late duplicate allocates a fresh mutex and is
// still deduplicated by the persisted Fulfilled flag.
func (r *Reconciler) lockMessage(id string) func() {
	r.mu.Lock()
	mu, ok := r.inflight[id]
	if !ok {
		mu = &sync.Mutex{}
		r.inflight[id] = mu
	}
	r.mu.Unlock()
	mu.Lock()
	return func() {
		r.mu.Lock()
		delete(r.inflight, id)
		r.mu.Unlock()
		mu.Unlock()
	}
}

func cloneAmount(amount *big.Int) *big.Int {
	if amount == nil {
		return nil
	}
	return new(big.Int).Set(amount)
}
