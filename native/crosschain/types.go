package crosschain

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
)

var (
	// ErrNilState is returned when the reconciler has no persistence wired.
	ErrNilState = errors.New("crosschain: state not configured")
	// ErrNilTransport is returned when no message transport is wired.
	ErrNilTransport = errors.New("crosschain: transport not configured")
	// ErrUnknownDomain rejects operations targeting an unregistered domain.
	ErrUnknownDomain = errors.New("crosschain: domain not registered")
	// ErrUnknownOp is returned for operation types outside the protocol.
	ErrUnknownOp = errors.New("crosschain: unknown operation type")
	// ErrInvalidMessage rejects messages missing a message id.
	ErrInvalidMessage = errors.New("crosschain: message id required")
)

// OpType enumerates the ledger operations that may be requested across
// domains.
type OpType uint8

const (
	OpSupply OpType = iota + 1
	OpBorrow
	OpRepay
	OpWithdraw
)

// String renders the canonical wire name for the operation.
func (t OpType) String() string {
	switch t {
	case OpSupply:
		return "supply"
	case OpBorrow:
		return "borrow"
	case OpRepay:
		return "repay"
	case OpWithdraw:
		return "withdraw"
	default:
		return fmt.Sprintf("optype(%d)", uint8(t))
	}
}

// Valid reports whether the operation type is part of the protocol.
func (t OpType) Valid() bool {
	return t >= OpSupply && t <= OpWithdraw
}

// ParseOpType resolves a wire name back to the operation type.
func ParseOpType(name string) (OpType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "supply":
		return OpSupply, nil
	case "borrow":
		return OpBorrow, nil
	case "repay":
		return OpRepay, nil
	case "withdraw":
		return OpWithdraw, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownOp, name)
	}
}

// Request tracks one cross-chain operation keyed by its message id. Requests
// are created when a message is sent and transition to fulfilled exactly once
// when the message is received, after which they are immutable history. The
// fulfilled flag is the dedup key that makes inbound processing idempotent.
type Request struct {
	MessageID    string
	SourceDomain uint64
	Initiator    string
	Asset        string
	Amount       *big.Int
	Op           OpType
	Fulfilled    bool
	CreatedAt    time.Time
}

// Clone returns a deep copy of the request.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	clone := *r
	if r.Amount != nil {
		clone.Amount = new(big.Int).Set(r.Amount)
	}
	return &clone
}
