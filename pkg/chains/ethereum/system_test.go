package ethereum

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iwinswap/iwinswap-staking-rewards-go/pkg/events"
	"github.com/Iwinswap/iwinswap-staking-rewards-go/protocols/distributor"
	"github.com/Iwinswap/iwinswap-staking-rewards-go/protocols/token"
)

var (
	owner     = common.HexToAddress("0x0000000000000000000000000000000000000001")
	depositor = common.HexToAddress("0x0000000000000000000000000000000000000003")
	alice     = common.HexToAddress("0x000000000000000000000000000000000000000a")
	custody   = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	pBTCM     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	wBTCO     = common.HexToAddress("0x00000000000000000000000000000000000000b1")
)

func testConfig(store Store) SystemConfig {
	return SystemConfig{
		Owner:   owner,
		Custody: custody,
		Tokens: []token.TokenView{
			{Address: pBTCM, Symbol: "pBTCM", Decimals: 18},
			{Address: wBTCO, Symbol: "wBTCO", Decimals: 18},
		},
		Store:         store,
		ClaimInterval: distributor.DefaultClaimInterval,
		Registry:      prometheus.NewRegistry(),
		Clock:         clockwork.NewFakeClockAt(time.Unix(1700000000, 0)),
	}
}

func TestNewSystem_RequiresOwnerAndCustody(t *testing.T) {
	_, err := NewSystem(SystemConfig{Custody: custody})
	assert.Error(t, err)
	_, err = NewSystem(SystemConfig{Owner: owner})
	assert.Error(t, err)
}

func TestNewSystem_DefaultsClaimInterval(t *testing.T) {
	cfg := testConfig(nil)
	cfg.ClaimInterval = 0
	sys, err := NewSystem(cfg)
	require.NoError(t, err)

	interval, err := sys.Distributor.ClaimInterval()
	require.NoError(t, err)
	assert.Equal(t, uint64(distributor.DefaultClaimInterval), interval)
}

func TestSystem_ClaimFlow(t *testing.T) {
	sys, err := NewSystem(testConfig(nil))
	require.NoError(t, err)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	require.NoError(t, sys.Roles.SetMaintainer(owner, crypto.PubkeyToAddress(key.PublicKey)))
	require.NoError(t, sys.Roles.SetRewardDepositor(owner, depositor))

	pid, err := sys.Pools.AddPool(owner, pBTCM, wBTCO)
	require.NoError(t, err)

	l, ok := sys.Tokens.Get(wBTCO)
	require.True(t, ok)
	require.NoError(t, l.Mint(depositor, uint256.NewInt(30)))
	require.NoError(t, l.Approve(depositor, custody, uint256.NewInt(30)))
	require.NoError(t, sys.Distributor.Deposit(depositor, wBTCO, uint256.NewInt(30)))

	msg := distributor.ClaimMessage{Beneficiary: alice, Pid: pid, RewardToken: wBTCO, Amount: uint256.NewInt(10)}
	sig, err := distributor.SignClaim(key, msg)
	require.NoError(t, err)
	_, err = sys.Distributor.Claim(alice, distributor.ClaimRequest{
		Pid: pid, RewardToken: wBTCO, Amount: msg.Amount, Signature: sig,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(10), l.BalanceOf(alice).Uint64())
}

func TestSystem_RestoresFromStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rewards.db")

	store, err := distributor.OpenBoltStore(path)
	require.NoError(t, err)
	sys, err := NewSystem(testConfig(store))
	require.NoError(t, err)
	_, err = sys.Pools.AddPool(owner, pBTCM, wBTCO)
	require.NoError(t, err)
	require.NoError(t, sys.Distributor.SetClaimInterval(owner, 60))
	require.NoError(t, store.Close())

	store, err = distributor.OpenBoltStore(path)
	require.NoError(t, err)
	defer store.Close()
	restored, err := NewSystem(testConfig(store))
	require.NoError(t, err)

	assert.Equal(t, sys.Pools.AllPools(), restored.Pools.AllPools())
	interval, err := restored.Distributor.ClaimInterval()
	require.NoError(t, err)
	assert.Equal(t, uint64(60), interval)
}

func TestDecodeEventJSON(t *testing.T) {
	receipt := distributor.Receipt{
		Pid:         1,
		Beneficiary: alice,
		RewardToken: wBTCO,
		Amount:      uint256.NewInt(10),
		Digest:      common.Hash{9},
		ClaimedAt:   1700000000,
	}
	data, err := json.Marshal(receipt)
	require.NoError(t, err)

	decoded, err := DecodeEventJSON(events.Claimed, data)
	require.NoError(t, err)
	got, ok := decoded.(distributor.Receipt)
	require.True(t, ok)
	assert.Equal(t, receipt.Digest, got.Digest)
	assert.Equal(t, uint64(10), got.Amount.Uint64())

	_, err = DecodeEventJSON(events.Kind("unknown"), data)
	assert.Error(t, err)
	_, err = DecodeEventJSON(events.PoolAdded, json.RawMessage(`{`))
	assert.Error(t, err)
}
