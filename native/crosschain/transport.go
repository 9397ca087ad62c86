package crosschain

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Transport delivers opaque payloads to remote domains. Send returns the
// message id the payload travels under; the engine uses that id as the dedup
// key for the whole request lifecycle.
type Transport interface {
	Send(ctx context.Context, targetDomain uint64, payload []byte) (string, error)
}

// InboundHandler receives payloads delivered by the transport.
type InboundHandler func(ctx context.Context, messageID string, sourceDomain uint64, payload []byte) error

// LoopbackTransport delivers every sent payload straight back to the local
// inbound handler. It backs single-process deployments and tests, and doubles
// as a reference for real transport integrations: ids are assigned on send
// and deliveries may repeat, which the reconciler must tolerate.
type LoopbackTransport struct {
	mu      sync.RWMutex
	handler InboundHandler
	domain  uint64
}

// NewLoopbackTransport constructs a loopback transport reporting the given
// domain as the source of delivered messages.
func NewLoopbackTransport(domain uint64) *LoopbackTransport {
	return &LoopbackTransport{domain: domain}
}

// SetHandler wires the inbound delivery target.
func (t *LoopbackTransport) SetHandler(handler InboundHandler) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.handler = handler
	t.mu.Unlock()
}

// Send assigns a message id and synchronously delivers the payload to the
// local handler. Delivery errors are not surfaced to the sender, matching
// fire-and-forget transport semantics.
func (t *LoopbackTransport) Send(ctx context.Context, _ uint64, payload []byte) (string, error) {
	if t == nil {
		return "", fmt.Errorf("loopback transport not configured")
	}
	messageID := uuid.NewString()
	t.mu.RLock()
	handler := t.handler
	domain := t.domain
	t.mu.RUnlock()
	if handler != nil {
		_ = handler(ctx, messageID, domain, payload)
	}
	return messageID, nil
}
