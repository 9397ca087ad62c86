package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"sync"
	"time"

	"crosslend/native/crosschain"
	"crosslend/native/lending"
	"crosslend/storage"
)

const (
	poolPrefix        = "lending/pool/"
	positionPrefix    = "lending/position/"
	positionIdxPrefix = "lending/positionidx/"
	requestPrefix     = "crosschain/request/"
	domainPrefix      = "crosschain/domain/"
	upkeepKey         = "lending/upkeep"
)

// Manager persists ledger entities into a key-value database. It backs both
// the lending engine and the cross-chain reconciler; records are JSON with
// big integers carried as decimal strings.
type Manager struct {
	db storage.Database

	// Guards the per-user position index, which is read-modify-write.
	idxMu sync.Mutex
}

// NewManager wraps the given database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

type poolRecord struct {
	Asset               string    `json:"asset"`
	TotalDeposits       string    `json:"totalDeposits"`
	TotalBorrows        string    `json:"totalBorrows"`
	UtilizationBps      uint64    `json:"utilizationBps"`
	BorrowRateBps       uint64    `json:"borrowRateBps"`
	SupplyRateBps       uint64    `json:"supplyRateBps"`
	CollateralFactorBps uint64    `json:"collateralFactorBps"`
	Active              bool      `json:"active"`
	LastUpdate          time.Time `json:"lastUpdate"`
}

type positionRecord struct {
	User       string    `json:"user"`
	Asset      string    `json:"asset"`
	Supplied   string    `json:"supplied"`
	Borrowed   string    `json:"borrowed"`
	LastUpdate time.Time `json:"lastUpdate"`
	Active     bool      `json:"active"`
}

type requestRecord struct {
	MessageID    string    `json:"messageId"`
	SourceDomain uint64    `json:"sourceDomain"`
	Initiator    string    `json:"initiator"`
	Asset        string    `json:"asset"`
	Amount       string    `json:"amount"`
	Op           uint8     `json:"op"`
	Fulfilled    bool      `json:"fulfilled"`
	CreatedAt    time.Time `json:"createdAt"`
}

func encodeAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func decodeAmount(s string) (*big.Int, error) {
	if s == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("state: invalid amount %q", s)
	}
	return v, nil
}

func poolKey(asset string) []byte {
	return []byte(poolPrefix + asset)
}

func positionKey(user, asset string) []byte {
	return []byte(positionPrefix + asset + "/" + user)
}

func positionIdxKey(user string) []byte {
	return []byte(positionIdxPrefix + user)
}

func requestKey(messageID string) []byte {
	return []byte(requestPrefix + messageID)
}

func domainKey(domain uint64) []byte {
	return []byte(domainPrefix + strconv.FormatUint(domain, 10))
}

// GetPool loads the pool for an asset, or nil when none exists.
func (m *Manager) GetPool(asset string) (*lending.Pool, error) {
	raw, err := m.db.Get(poolKey(asset))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec poolRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("state: decode pool %s: %w", asset, err)
	}
	return poolFromRecord(rec)
}

func poolFromRecord(rec poolRecord) (*lending.Pool, error) {
	deposits, err := decodeAmount(rec.TotalDeposits)
	if err != nil {
		return nil, err
	}
	borrows, err := decodeAmount(rec.TotalBorrows)
	if err != nil {
		return nil, err
	}
	return &lending.Pool{
		Asset:               rec.Asset,
		TotalDeposits:       deposits,
		TotalBorrows:        borrows,
		UtilizationBps:      rec.UtilizationBps,
		BorrowRateBps:       rec.BorrowRateBps,
		SupplyRateBps:       rec.SupplyRateBps,
		CollateralFactorBps: rec.CollateralFactorBps,
		Active:              rec.Active,
		LastUpdate:          rec.LastUpdate,
	}, nil
}

// PutPool stores the pool keyed by its asset.
func (m *Manager) PutPool(pool *lending.Pool) error {
	if pool == nil || pool.Asset == "" {
		return fmt.Errorf("state: pool requires an asset")
	}
	raw, err := json.Marshal(poolRecord{
		Asset:               pool.Asset,
		TotalDeposits:       encodeAmount(pool.TotalDeposits),
		TotalBorrows:        encodeAmount(pool.TotalBorrows),
		UtilizationBps:      pool.UtilizationBps,
		BorrowRateBps:       pool.BorrowRateBps,
		SupplyRateBps:       pool.SupplyRateBps,
		CollateralFactorBps: pool.CollateralFactorBps,
		Active:              pool.Active,
		LastUpdate:          pool.LastUpdate,
	})
	if err != nil {
		return err
	}
	return m.db.Put(poolKey(pool.Asset), raw)
}

// ListPools returns every stored pool ordered by asset.
func (m *Manager) ListPools() ([]*lending.Pool, error) {
	var pools []*lending.Pool
	var iterErr error
	err := m.db.IteratePrefix([]byte(poolPrefix), func(key, value []byte) bool {
		var rec poolRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			iterErr = fmt.Errorf("state: decode pool %s: %w", string(key), err)
			return false
		}
		pool, err := poolFromRecord(rec)
		if err != nil {
			iterErr = err
			return false
		}
		pools = append(pools, pool)
		return true
	})
	if err != nil {
		return nil, err
	}
	if iterErr != nil {
		return nil, iterErr
	}
	sort.Slice(pools, func(i, j int) bool { return pools[i].Asset < pools[j].Asset })
	return pools, nil
}

// GetPosition loads a user's position in an asset, or nil when none exists.
func (m *Manager) GetPosition(user, asset string) (*lending.Position, error) {
	raw, err := m.db.Get(positionKey(user, asset))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec positionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("state: decode position %s/%s: %w", asset, user, err)
	}
	supplied, err := decodeAmount(rec.Supplied)
	if err != nil {
		return nil, err
	}
	borrowed, err := decodeAmount(rec.Borrowed)
	if err != nil {
		return nil, err
	}
	return &lending.Position{
		User:       rec.User,
		Asset:      rec.Asset,
		Supplied:   supplied,
		Borrowed:   borrowed,
		LastUpdate: rec.LastUpdate,
		Active:     rec.Active,
	}, nil
}

// PutPosition stores the position and registers its asset in the owner's
// position index so account-wide scans can find it.
func (m *Manager) PutPosition(position *lending.Position) error {
	if position == nil || position.User == "" || position.Asset == "" {
		return fmt.Errorf("state: position requires user and asset")
	}
	raw, err := json.Marshal(positionRecord{
		User:       position.User,
		Asset:      position.Asset,
		Supplied:   encodeAmount(position.Supplied),
		Borrowed:   encodeAmount(position.Borrowed),
		LastUpdate: position.LastUpdate,
		Active:     position.Active,
	})
	if err != nil {
		return err
	}
	if err := m.db.Put(positionKey(position.User, position.Asset), raw); err != nil {
		return err
	}
	return m.indexPosition(position.User, position.Asset)
}

func (m *Manager) indexPosition(user, asset string) error {
	m.idxMu.Lock()
	defer m.idxMu.Unlock()
	assets, err := m.UserAssets(user)
	if err != nil {
		return err
	}
	for _, existing := range assets {
		if existing == asset {
			return nil
		}
	}
	assets = append(assets, asset)
	sort.Strings(assets)
	raw, err := json.Marshal(assets)
	if err != nil {
		return err
	}
	return m.db.Put(positionIdxKey(user), raw)
}

// UserAssets lists the assets the user holds a position in, sorted.
func (m *Manager) UserAssets(user string) ([]string, error) {
	raw, err := m.db.Get(positionIdxKey(user))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var assets []string
	if err := json.Unmarshal(raw, &assets); err != nil {
		return nil, fmt.Errorf("state: decode position index %s: %w", user, err)
	}
	return assets, nil
}

// LastUpkeep returns the timestamp of the last completed upkeep run. The zero
// time means no run has been recorded.
func (m *Manager) LastUpkeep() (time.Time, error) {
	raw, err := m.db.Get([]byte(upkeepKey))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, string(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("state: decode upkeep marker: %w", err)
	}
	return ts, nil
}

// SetLastUpkeep records the completion of an upkeep run.
func (m *Manager) SetLastUpkeep(ts time.Time) error {
	return m.db.Put([]byte(upkeepKey), []byte(ts.UTC().Format(time.RFC3339Nano)))
}

// GetRequest loads the cross-chain request tracked under the message id, or
// nil when the id is unknown.
func (m *Manager) GetRequest(messageID string) (*crosschain.Request, error) {
	raw, err := m.db.Get(requestKey(messageID))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec requestRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("state: decode request %s: %w", messageID, err)
	}
	amount, err := decodeAmount(rec.Amount)
	if err != nil {
		return nil, err
	}
	return &crosschain.Request{
		MessageID:    rec.MessageID,
		SourceDomain: rec.SourceDomain,
		Initiator:    rec.Initiator,
		Asset:        rec.Asset,
		Amount:       amount,
		Op:           crosschain.OpType(rec.Op),
		Fulfilled:    rec.Fulfilled,
		CreatedAt:    rec.CreatedAt,
	}, nil
}

// PutRequest stores the request keyed by its message id.
func (m *Manager) PutRequest(request *crosschain.Request) error {
	if request == nil || request.MessageID == "" {
		return fmt.Errorf("state: request requires a message id")
	}
	raw, err := json.Marshal(requestRecord{
		MessageID:    request.MessageID,
		SourceDomain: request.SourceDomain,
		Initiator:    request.Initiator,
		Asset:        request.Asset,
		Amount:       encodeAmount(request.Amount),
		Op:           uint8(request.Op),
		Fulfilled:    request.Fulfilled,
		CreatedAt:    request.CreatedAt,
	})
	if err != nil {
		return err
	}
	return m.db.Put(requestKey(request.MessageID), raw)
}

// HasDomain reports whether the domain is registered.
func (m *Manager) HasDomain(domain uint64) (bool, error) {
	return m.db.Has(domainKey(domain))
}

// PutDomain registers a domain. Writing an already registered domain is a
// no-op.
func (m *Manager) PutDomain(domain uint64) error {
	return m.db.Put(domainKey(domain), []byte{1})
}

// ListDomains returns every registered domain id.
func (m *Manager) ListDomains() ([]uint64, error) {
	var domains []uint64
	var iterErr error
	err := m.db.IteratePrefix([]byte(domainPrefix), func(key, _ []byte) bool {
		id, err := strconv.ParseUint(string(key[len(domainPrefix):]), 10, 64)
		if err != nil {
			iterErr = fmt.Errorf("state: decode domain key %s: %w", string(key), err)
			return false
		}
		domains = append(domains, id)
		return true
	})
	if err != nil {
		return nil, err
	}
	if iterErr != nil {
		return nil, iterErr
	}
	return domains, nil
}
