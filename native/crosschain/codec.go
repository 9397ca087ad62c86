package crosschain

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"crosslend/native/oracle"
)

// payloadJSON is the canonical wire form carried by the transport. Amounts
// travel as decimal strings to avoid precision loss across runtimes.
type payloadJSON struct {
	SourceDomain uint64 `json:"sourceDomain"`
	Initiator    string `json:"initiator"`
	Asset        string `json:"asset"`
	Amount       string `json:"amount"`
	Op           string `json:"op"`
}

// Payload is the decoded form of a cross-chain operation message.
type Payload struct {
	SourceDomain uint64
	Initiator    string
	Asset        string
	Amount       *big.Int
	Op           OpType
}

// EncodePayload renders the operation into its canonical wire form.
func EncodePayload(p Payload) ([]byte, error) {
	if !p.Op.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownOp, uint8(p.Op))
	}
	initiator := strings.TrimSpace(p.Initiator)
	if initiator == "" {
		return nil, fmt.Errorf("crosschain: initiator required")
	}
	asset := oracle.NormalizeAsset(p.Asset)
	if asset == "" {
		return nil, fmt.Errorf("crosschain: asset required")
	}
	if p.Amount == nil || p.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("crosschain: amount must be positive")
	}
	return json.Marshal(payloadJSON{
		SourceDomain: p.SourceDomain,
		Initiator:    initiator,
		Asset:        asset,
		Amount:       p.Amount.String(),
		Op:           p.Op.String(),
	})
}

// DecodePayload parses and validates the wire form.
func DecodePayload(data []byte) (Payload, error) {
	var raw payloadJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return Payload{}, fmt.Errorf("crosschain: decode payload: %w", err)
	}
	op, err := ParseOpType(raw.Op)
	if err != nil {
		return Payload{}, err
	}
	initiator := strings.TrimSpace(raw.Initiator)
	if initiator == "" {
		return Payload{}, fmt.Errorf("crosschain: initiator required")
	}
	asset := oracle.NormalizeAsset(raw.Asset)
	if asset == "" {
		return Payload{}, fmt.Errorf("crosschain: asset required")
	}
	amountStr := strings.TrimSpace(raw.Amount)
	amount, ok := new(big.Int).SetString(amountStr, 10)
	if !ok {
		return Payload{}, fmt.Errorf("crosschain: invalid amount %q", raw.Amount)
	}
	if amount.Sign() <= 0 {
		return Payload{}, fmt.Errorf("crosschain: amount must be positive")
	}
	return Payload{
		SourceDomain: raw.SourceDomain,
		Initiator:    initiator,
		Asset:        asset,
		Amount:       amount,
		Op:           op,
	}, nil
}

// PayloadDigest returns the Keccak-256 digest of the wire bytes, used to
// correlate audit logs across domains without shipping the full payload.
func PayloadDigest(data []byte) string {
	return hex.EncodeToString(ethcrypto.Keccak256(data))
}
