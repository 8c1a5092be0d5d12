package oracle

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iwinswap/iwinswap-staking-rewards-go/pkg/events"
	"github.com/Iwinswap/iwinswap-staking-rewards-go/pkg/roles"
)

var (
	owner     = common.HexToAddress("0x0000000000000000000000000000000000000001")
	submitter = common.HexToAddress("0x0000000000000000000000000000000000000004")
	alice     = common.HexToAddress("0x000000000000000000000000000000000000000a")
	bob       = common.HexToAddress("0x000000000000000000000000000000000000000b")
)

type poolCount uint64

func (n poolCount) PoolLength() uint64 { return uint64(n) }

func newTestOracle(t *testing.T) (*Oracle, *events.Feed) {
	t.Helper()
	rr, err := roles.New(owner)
	require.NoError(t, err)
	require.NoError(t, rr.SetRewardStatsSubmitter(owner, submitter))

	feed := events.NewFeed()
	o, err := New(Config{Authorizer: rr, Pools: poolCount(2), Feed: feed})
	require.NoError(t, err)
	return o, feed
}

func amounts(vs ...uint64) []*uint256.Int {
	out := make([]*uint256.Int, len(vs))
	for i, v := range vs {
		out[i] = uint256.NewInt(v)
	}
	return out
}

func TestOracle_SetRewardStats(t *testing.T) {
	o, feed := newTestOracle(t)
	ch := make(chan events.Event, 1)
	sub := feed.Subscribe(ch)
	defer sub.Unsubscribe()

	users := []common.Address{alice, bob}

	assert.ErrorIs(t, o.SetRewardStats(alice, 0, users, amounts(100, 50)), ErrUnauthorized)
	assert.ErrorIs(t, o.SetRewardStats(submitter, 0, users, amounts(100)), ErrRewardStatsUnmatched)
	assert.ErrorIs(t, o.SetRewardStats(submitter, 2, users, amounts(100, 50)), ErrInvalidPid)
	assert.ErrorIs(t, o.SetRewardStats(submitter, 0, users, []*uint256.Int{nil, nil}), ErrNilReward)

	assert.True(t, o.UserReward(0, alice).IsZero())
	require.NoError(t, o.SetRewardStats(submitter, 0, users, amounts(100, 50)))
	assert.Equal(t, uint64(100), o.UserReward(0, alice).Uint64())
	assert.Equal(t, uint64(50), o.UserReward(0, bob).Uint64())
	assert.True(t, o.UserReward(1, alice).IsZero(), "stats are per pool")

	ev := <-ch
	assert.Equal(t, events.RewardStatsUpdated, ev.Kind)
	assert.Equal(t, users, ev.Data.(RewardStatsUpdated).Beneficiaries)

	// Stats are cumulative snapshots, so a new batch overwrites.
	require.NoError(t, o.SetRewardStats(submitter, 0, []common.Address{alice}, amounts(120)))
	<-ch
	assert.Equal(t, uint64(120), o.UserReward(0, alice).Uint64())
}

func TestOracle_LastUpdatedAt(t *testing.T) {
	o, _ := newTestOracle(t)
	assert.ErrorIs(t, o.SetLastUpdatedAt(alice, 1460714400), ErrUnauthorized)
	assert.Zero(t, o.LastUpdatedAt())
	require.NoError(t, o.SetLastUpdatedAt(submitter, 1460714400))
	assert.Equal(t, uint64(1460714400), o.LastUpdatedAt())
}

func TestOracle_Pending(t *testing.T) {
	o, feed := newTestOracle(t)
	ch := make(chan events.Event, 1)
	sub := feed.Subscribe(ch)
	defer sub.Unsubscribe()

	require.NoError(t, o.SetRewardStats(submitter, 1, []common.Address{alice}, amounts(70)))

	tests := []struct {
		name    string
		claimed *uint256.Int
		want    uint64
	}{
		{"NothingClaimed", nil, 70},
		{"PartiallyClaimed", uint256.NewInt(30), 40},
		{"FullyClaimed", uint256.NewInt(70), 0},
		{"OverClaimed", uint256.NewInt(90), 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, o.Pending(1, alice, tc.claimed).Uint64())
		})
	}
}
