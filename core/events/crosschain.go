package events

import (
	"math/big"
	"strconv"
	"strings"
)

const (
	// TypeMessageSent marks an outbound cross-chain operation request.
	TypeMessageSent = "crosschain.sent"
	// TypeMessageCompleted marks the terminal processing of an inbound
	// cross-chain message, successful or not.
	TypeMessageCompleted = "crosschain.completed"
	// TypeMessageDuplicate marks an inbound delivery skipped because its
	// message id was already fulfilled.
	TypeMessageDuplicate = "crosschain.duplicate"
)

// MessageSent records an outbound request handed to the transport.
type MessageSent struct {
	MessageID    string
	TargetDomain uint64
	Initiator    string
	Asset        string
	Amount       *big.Int
	Op           string
}

// EventType satisfies the events.Event interface.
func (MessageSent) EventType() string { return TypeMessageSent }

// Attributes satisfies the events.Event interface.
func (e MessageSent) Attributes() map[string]string {
	attrs := map[string]string{
		"messageId":    strings.TrimSpace(e.MessageID),
		"targetDomain": strconv.FormatUint(e.TargetDomain, 10),
		"initiator":    strings.TrimSpace(e.Initiator),
		"asset":        strings.ToUpper(strings.TrimSpace(e.Asset)),
		"op":           e.Op,
	}
	if e.Amount != nil {
		attrs["amount"] = e.Amount.String()
	}
	return attrs
}

// MessageDuplicate records a redelivery of an already fulfilled message id.
type MessageDuplicate struct {
	MessageID    string
	SourceDomain uint64
	Op           string
}

// EventType satisfies the events.Event interface.
func (MessageDuplicate) EventType() string { return TypeMessageDuplicate }

// Attributes satisfies the events.Event interface.
func (e MessageDuplicate) Attributes() map[string]string {
	return map[string]string{
		"messageId":    strings.TrimSpace(e.MessageID),
		"sourceDomain": strconv.FormatUint(e.SourceDomain, 10),
		"op":           e.Op,
	}
}

// MessageCompleted is emitted exactly once per message id when inbound
// processing reaches its terminal state. Success reflects whether the ledger
// mutation applied; a false value means the message was consumed but the
// operation was rejected.
type MessageCompleted struct {
	MessageID    string
	SourceDomain uint64
	Sender       string
	Asset        string
	Amount       *big.Int
	Op           string
	Success      bool
	Reason       string
}

// EventType satisfies the events.Event interface.
func (MessageCompleted) EventType() string { return TypeMessageCompleted }

// Attributes satisfies the events.Event interface.
func (e MessageCompleted) Attributes() map[string]string {
	attrs := map[string]string{
		"messageId":    strings.TrimSpace(e.MessageID),
		"sourceDomain": strconv.FormatUint(e.SourceDomain, 10),
		"sender":       strings.TrimSpace(e.Sender),
		"asset":        strings.ToUpper(strings.TrimSpace(e.Asset)),
		"op":           e.Op,
		"success":      strconv.FormatBool(e.Success),
	}
	if e.Amount != nil {
		attrs["amount"] = e.Amount.String()
	}
	if reason := strings.TrimSpace(e.Reason); reason != "" {
		attrs["reason"] = reason
	}
	return attrs
}
