package state

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"crosslend/native/crosschain"
	"crosslend/native/lending"
	"crosslend/storage"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(storage.NewMemDB())
}

func TestPoolRoundTrip(t *testing.T) {
	manager := newTestManager(t)

	missing, err := manager.GetPool("ETH")
	require.NoError(t, err)
	require.Nil(t, missing)

	pool := &lending.Pool{
		Asset:               "ETH",
		TotalDeposits:       big.NewInt(1500),
		TotalBorrows:        big.NewInt(500),
		UtilizationBps:      3333,
		BorrowRateBps:       466,
		SupplyRateBps:       155,
		CollateralFactorBps: 7500,
		Active:              true,
		LastUpdate:          time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, manager.PutPool(pool))

	loaded, err := manager.GetPool("ETH")
	require.NoError(t, err)
	require.Equal(t, pool.Asset, loaded.Asset)
	require.Zero(t, pool.TotalDeposits.Cmp(loaded.TotalDeposits))
	require.Zero(t, pool.TotalBorrows.Cmp(loaded.TotalBorrows))
	require.Equal(t, pool.CollateralFactorBps, loaded.CollateralFactorBps)
	require.True(t, loaded.Active)
	require.True(t, pool.LastUpdate.Equal(loaded.LastUpdate))
}

func TestListPoolsSorted(t *testing.T) {
	manager := newTestManager(t)
	for _, asset := range []string{"USDC", "BTC", "ETH"} {
		require.NoError(t, manager.PutPool(&lending.Pool{
			Asset:         asset,
			TotalDeposits: big.NewInt(0),
			TotalBorrows:  big.NewInt(0),
		}))
	}
	pools, err := manager.ListPools()
	require.NoError(t, err)
	require.Len(t, pools, 3)
	require.Equal(t, "BTC", pools[0].Asset)
	require.Equal(t, "ETH", pools[1].Asset)
	require.Equal(t, "USDC", pools[2].Asset)
}

func TestPositionRoundTripAndIndex(t *testing.T) {
	manager := newTestManager(t)

	missing, err := manager.GetPosition("alice", "ETH")
	require.NoError(t, err)
	require.Nil(t, missing)

	require.NoError(t, manager.PutPosition(&lending.Position{
		User:     "alice",
		Asset:    "ETH",
		Supplied: big.NewInt(10),
		Borrowed: big.NewInt(3),
		Active:   true,
	}))
	require.NoError(t, manager.PutPosition(&lending.Position{
		User:     "alice",
		Asset:    "USDC",
		Supplied: big.NewInt(100),
		Borrowed: big.NewInt(0),
		Active:   true,
	}))
	// Rewriting an asset must not duplicate the index entry.
	require.NoError(t, manager.PutPosition(&lending.Position{
		User:     "alice",
		Asset:    "ETH",
		Supplied: big.NewInt(12),
		Borrowed: big.NewInt(3),
		Active:   true,
	}))

	assets, err := manager.UserAssets("alice")
	require.NoError(t, err)
	require.Equal(t, []string{"ETH", "USDC"}, assets)

	position, err := manager.GetPosition("alice", "ETH")
	require.NoError(t, err)
	require.Zero(t, position.Supplied.Cmp(big.NewInt(12)))
	require.Zero(t, position.Borrowed.Cmp(big.NewInt(3)))

	other, err := manager.UserAssets("bob")
	require.NoError(t, err)
	require.Empty(t, other)
}

func TestUpkeepMarker(t *testing.T) {
	manager := newTestManager(t)

	last, err := manager.LastUpkeep()
	require.NoError(t, err)
	require.True(t, last.IsZero())

	ts := time.Date(2026, 8, 1, 12, 30, 0, 0, time.UTC)
	require.NoError(t, manager.SetLastUpkeep(ts))

	last, err = manager.LastUpkeep()
	require.NoError(t, err)
	require.True(t, ts.Equal(last))
}

func TestRequestRoundTrip(t *testing.T) {
	manager := newTestManager(t)

	missing, err := manager.GetRequest("nope")
	require.NoError(t, err)
	require.Nil(t, missing)

	request := &crosschain.Request{
		MessageID:    "msg-1",
		SourceDomain: 42,
		Initiator:    "alice",
		Asset:        "ETH",
		Amount:       big.NewInt(55),
		Op:           crosschain.OpWithdraw,
		Fulfilled:    true,
		CreatedAt:    time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, manager.PutRequest(request))

	loaded, err := manager.GetRequest("msg-1")
	require.NoError(t, err)
	require.Equal(t, request.MessageID, loaded.MessageID)
	require.Equal(t, request.SourceDomain, loaded.SourceDomain)
	require.Zero(t, request.Amount.Cmp(loaded.Amount))
	require.Equal(t, crosschain.OpWithdraw, loaded.Op)
	require.True(t, loaded.Fulfilled)
}

func TestDomainRegistry(t *testing.T) {
	manager := newTestManager(t)

	known, err := manager.HasDomain(7)
	require.NoError(t, err)
	require.False(t, known)

	require.NoError(t, manager.PutDomain(7))
	require.NoError(t, manager.PutDomain(7))
	require.NoError(t, manager.PutDomain(3))

	known, err = manager.HasDomain(7)
	require.NoError(t, err)
	require.True(t, known)

	domains, err := manager.ListDomains()
	require.NoError(t, err)
	require.ElementsMatch(t, []uint64{3, 7}, domains)
}
