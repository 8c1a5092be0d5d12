package poolregistry

import (
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iwinswap/iwinswap-staking-rewards-go/pkg/events"
	"github.com/Iwinswap/iwinswap-staking-rewards-go/pkg/roles"
)

var (
	owner   = common.HexToAddress("0x0000000000000000000000000000000000000001")
	manager = common.HexToAddress("0x0000000000000000000000000000000000000002")
	alice   = common.HexToAddress("0x000000000000000000000000000000000000000a")

	pBTCM = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	pETHM = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	wBTCO = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	wETHO = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

type memStore struct {
	pools []Pool
	err   error
}

func (s *memStore) LoadPools() ([]Pool, error) {
	return append([]Pool(nil), s.pools...), nil
}

func (s *memStore) PutPool(p Pool) error {
	if s.err != nil {
		return s.err
	}
	if p.Pid == uint64(len(s.pools)) {
		s.pools = append(s.pools, p)
	} else {
		s.pools[p.Pid] = p
	}
	return nil
}

func newTestRegistry(t *testing.T, store Store) (*Registry, *events.Feed) {
	t.Helper()
	rr, err := roles.New(owner)
	require.NoError(t, err)
	require.NoError(t, rr.SetManager(owner, manager))

	feed := events.NewFeed()
	r, err := NewRegistry(Config{
		Authorizer: rr,
		Store:      store,
		Feed:       feed,
		Clock:      clockwork.NewFakeClockAt(time.Unix(1700000000, 0)),
	})
	require.NoError(t, err)
	return r, feed
}

func TestNewRegistry_RequiresAuthorizer(t *testing.T) {
	_, err := NewRegistry(Config{})
	assert.Error(t, err)
}

func TestRegistry_AddPool(t *testing.T) {
	r, _ := newTestRegistry(t, nil)

	t.Run("RequiresManager", func(t *testing.T) {
		_, err := r.AddPool(alice, pBTCM, wBTCO)
		assert.ErrorIs(t, err, ErrUnauthorized)
		assert.Equal(t, uint64(0), r.PoolLength())
	})

	t.Run("RejectsZeroTokens", func(t *testing.T) {
		_, err := r.AddPool(manager, common.Address{}, wBTCO)
		assert.ErrorIs(t, err, ErrZeroAddress)
	})

	t.Run("AssignsSequentialPids", func(t *testing.T) {
		pid, err := r.AddPool(manager, pBTCM, wBTCO)
		require.NoError(t, err)
		assert.Equal(t, uint64(0), pid)

		pid, err = r.AddPool(manager, pETHM, wETHO)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), pid)
		assert.Equal(t, uint64(2), r.PoolLength())

		p, err := r.Pool(1)
		require.NoError(t, err)
		assert.Equal(t, pETHM, p.DepositToken)
		assert.Equal(t, wETHO, p.RewardToken)
		assert.Equal(t, DerivePoolKey(pETHM, wETHO, 1), p.Key)
		assert.Equal(t, p.Key.Address(), p.Address)
	})

	t.Run("DeduplicatesByTokenPair", func(t *testing.T) {
		_, err := r.AddPool(manager, pBTCM, wBTCO)
		assert.ErrorIs(t, err, ErrDuplicatePool)

		// Either token alone is not a duplicate.
		pid, err := r.AddPool(manager, pBTCM, wETHO)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), pid)
	})
}

func TestRegistry_RemovePool(t *testing.T) {
	r, _ := newTestRegistry(t, nil)
	_, err := r.AddPool(manager, pBTCM, wBTCO)
	require.NoError(t, err)
	_, err = r.AddPool(manager, pETHM, wETHO)
	require.NoError(t, err)

	before := r.AllPools()

	assert.ErrorIs(t, r.RemovePool(alice, 0), ErrUnauthorized)
	assert.ErrorIs(t, r.RemovePool(manager, 2), ErrInvalidIndex)

	require.NoError(t, r.RemovePool(manager, 0))
	require.NoError(t, r.RemovePool(manager, 0), "removing twice is a no-op")

	after := r.AllPools()
	require.Len(t, after, 2, "removal never shrinks the arena")
	assert.Equal(t, uint64(2), r.PoolLength())
	assert.True(t, after[0].Deprecated)
	assert.False(t, after[1].Deprecated)

	for i := range before {
		assert.Equal(t, before[i].Pid, after[i].Pid)
		assert.Equal(t, before[i].Address, after[i].Address)
		idx, err := r.PoolIndex(before[i].Address)
		require.NoError(t, err)
		assert.Equal(t, before[i].Pid, idx, "pid is stable across removal")
	}

	assert.True(t, r.IsPool(before[0].Address))
	assert.True(t, r.IsDeprecatedPool(before[0].Address))
	assert.False(t, r.IsDeprecatedPool(before[1].Address))

	t.Run("PairReusableAfterDeprecation", func(t *testing.T) {
		pid, err := r.AddPool(manager, pBTCM, wBTCO)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), pid)

		p, err := r.Pool(pid)
		require.NoError(t, err)
		assert.NotEqual(t, before[0].Address, p.Address)

		old, err := r.PoolIndex(before[0].Address)
		require.NoError(t, err)
		assert.Equal(t, uint64(0), old)
	})
}

func TestRegistry_Accessors(t *testing.T) {
	r, _ := newTestRegistry(t, nil)
	assert.Empty(t, r.AllPools())

	_, err := r.PoolIndex(alice)
	assert.ErrorIs(t, err, ErrPoolNotFound)
	assert.False(t, r.IsPool(alice))
	assert.False(t, r.IsDeprecatedPool(alice))

	_, err = r.Pool(0)
	assert.ErrorIs(t, err, ErrInvalidIndex)

	_, err = r.AddPool(manager, pBTCM, wBTCO)
	require.NoError(t, err)

	all := r.AllPools()
	all[0].Deprecated = true
	assert.False(t, r.AllPools()[0].Deprecated, "AllPools must return a defensive copy")
	assert.Len(t, r.View().Pools, 1)
}

func TestRegistry_TokenPools(t *testing.T) {
	r, _ := newTestRegistry(t, nil)
	_, err := r.AddPool(manager, pBTCM, wBTCO)
	require.NoError(t, err)
	_, err = r.AddPool(manager, pETHM, wBTCO)
	require.NoError(t, err)

	assert.Equal(t, []uint64{0, 1}, r.PoolsByToken(wBTCO))
	assert.Equal(t, []uint64{1}, r.PoolsByToken(pETHM))
	assert.Nil(t, r.PoolsByToken(alice))

	view := r.TokenPools()
	require.Len(t, view.Tokens, 3)
	require.Len(t, view.Pools, 3)
	for i, token := range view.Tokens {
		assert.Equal(t, r.PoolsByToken(token), view.Pools[i])
	}
}

func TestRegistry_Events(t *testing.T) {
	r, feed := newTestRegistry(t, nil)
	ch := make(chan events.Event, 4)
	sub := feed.Subscribe(ch)
	defer sub.Unsubscribe()

	_, err := r.AddPool(manager, pBTCM, wBTCO)
	require.NoError(t, err)
	require.NoError(t, r.RemovePool(manager, 0))

	added := <-ch
	assert.Equal(t, events.PoolAdded, added.Kind)
	assert.Equal(t, uint64(0), added.Data.(PoolAdded).Pid)

	removed := <-ch
	assert.Equal(t, events.PoolRemoved, removed.Kind)
	assert.Equal(t, uint64(0), removed.Data.(PoolRemoved).Pid)
}

func TestRegistry_Store(t *testing.T) {
	t.Run("PersistsAndRestores", func(t *testing.T) {
		store := &memStore{}
		r, _ := newTestRegistry(t, store)
		_, err := r.AddPool(manager, pBTCM, wBTCO)
		require.NoError(t, err)
		_, err = r.AddPool(manager, pETHM, wETHO)
		require.NoError(t, err)
		require.NoError(t, r.RemovePool(manager, 1))

		restored, _ := newTestRegistry(t, store)
		assert.Equal(t, r.AllPools(), restored.AllPools())

		// The deprecated pair is free again after restore.
		pid, err := restored.AddPool(manager, pETHM, wETHO)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), pid)
	})

	t.Run("StoreFailureLeavesArenaUntouched", func(t *testing.T) {
		store := &memStore{}
		r, _ := newTestRegistry(t, store)
		_, err := r.AddPool(manager, pBTCM, wBTCO)
		require.NoError(t, err)

		store.err = errors.New("disk full")
		_, err = r.AddPool(manager, pETHM, wETHO)
		assert.Error(t, err)
		assert.Equal(t, uint64(1), r.PoolLength())

		assert.Error(t, r.RemovePool(manager, 0))
		p, _ := r.Pool(0)
		assert.False(t, p.Deprecated)
	})

	t.Run("RejectsCorruptSnapshot", func(t *testing.T) {
		store := &memStore{pools: []Pool{{Pid: 1, DepositToken: pBTCM, RewardToken: wBTCO}}}
		rr, err := roles.New(owner)
		require.NoError(t, err)
		_, err = NewRegistry(Config{Authorizer: rr, Store: store})
		assert.ErrorIs(t, err, ErrCorruptSnapshot)
	})
}
