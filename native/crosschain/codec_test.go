package crosschain

import (
	"errors"
	"math/big"
	"testing"
)

func TestPayloadRoundTrip(t *testing.T) {
	encoded, err := EncodePayload(Payload{
		SourceDomain: 7,
		Initiator:    " alice ",
		Asset:        "eth",
		Amount:       big.NewInt(125),
		Op:           OpBorrow,
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := DecodePayload(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.SourceDomain != 7 {
		t.Fatalf("unexpected domain %d", decoded.SourceDomain)
	}
	if decoded.Initiator != "alice" {
		t.Fatalf("expected trimmed initiator, got %q", decoded.Initiator)
	}
	if decoded.Asset != "ETH" {
		t.Fatalf("expected normalized asset, got %q", decoded.Asset)
	}
	if decoded.Amount.Cmp(big.NewInt(125)) != 0 {
		t.Fatalf("unexpected amount %s", decoded.Amount)
	}
	if decoded.Op != OpBorrow {
		t.Fatalf("unexpected op %s", decoded.Op)
	}
}

func TestEncodePayloadValidation(t *testing.T) {
	base := Payload{SourceDomain: 1, Initiator: "alice", Asset: "ETH", Amount: big.NewInt(1), Op: OpSupply}

	p := base
	p.Op = OpType(99)
	if _, err := EncodePayload(p); !errors.Is(err, ErrUnknownOp) {
		t.Fatalf("expected ErrUnknownOp, got %v", err)
	}

	p = base
	p.Initiator = "  "
	if _, err := EncodePayload(p); err == nil {
		t.Fatalf("expected error for blank initiator")
	}

	p = base
	p.Amount = big.NewInt(0)
	if _, err := EncodePayload(p); err == nil {
		t.Fatalf("expected error for zero amount")
	}
}

func TestDecodePayloadRejectsGarbage(t *testing.T) {
	if _, err := DecodePayload([]byte("not json")); err == nil {
		t.Fatalf("expected decode failure")
	}
	if _, err := DecodePayload([]byte(`{"initiator":"a","asset":"ETH","amount":"-4","op":"supply"}`)); err == nil {
		t.Fatalf("expected rejection of negative amount")
	}
	if _, err := DecodePayload([]byte(`{"initiator":"a","asset":"ETH","amount":"5","op":"teleport"}`)); !errors.Is(err, ErrUnknownOp) {
		t.Fatalf("expected ErrUnknownOp, got %v", err)
	}
}

func TestPayloadDigestStable(t *testing.T) {
	data := []byte(`{"op":"supply"}`)
	first := PayloadDigest(data)
	second := PayloadDigest(data)
	if first != second || len(first) != 64 {
		t.Fatalf("expected stable 32-byte hex digest, got %q / %q", first, second)
	}
	if PayloadDigest([]byte(`{"op":"borrow"}`)) == first {
		t.Fatalf("different payloads must not collide")
	}
}

func TestOpTypeParse(t *testing.T) {
	for _, op := range []OpType{OpSupply, OpBorrow, OpRepay, OpWithdraw} {
		parsed, err := ParseOpType(op.String())
		if err != nil {
			t.Fatalf("parse %s: %v", op, err)
		}
		if parsed != op {
			t.Fatalf("round trip mismatch for %s", op)
		}
	}
	if _, err := ParseOpType("mint"); !errors.Is(err, ErrUnknownOp) {
		t.Fatalf("expected ErrUnknownOp, got %v", err)
	}
	if OpType(0).Valid() || OpType(5).Valid() {
		t.Fatalf("out-of-range op types must be invalid")
	}
}
