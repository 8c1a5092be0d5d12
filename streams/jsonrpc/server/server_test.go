package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iwinswap/iwinswap-staking-rewards-go/pkg/chains/ethereum"
	"github.com/Iwinswap/iwinswap-staking-rewards-go/pkg/events"
	"github.com/Iwinswap/iwinswap-staking-rewards-go/protocols/distributor"
	"github.com/Iwinswap/iwinswap-staking-rewards-go/protocols/poolregistry"
	"github.com/Iwinswap/iwinswap-staking-rewards-go/protocols/token"
	"github.com/Iwinswap/iwinswap-staking-rewards-go/streams/jsonrpc"
)

var (
	owner     = common.HexToAddress("0x0000000000000000000000000000000000000001")
	depositor = common.HexToAddress("0x0000000000000000000000000000000000000003")
	alice     = common.HexToAddress("0x000000000000000000000000000000000000000a")
	custody   = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	pBTCM     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	wBTCO     = common.HexToAddress("0x00000000000000000000000000000000000000b1")
)

type testEnv struct {
	sys *ethereum.System
	srv *Server
	ts  *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	reg := prometheus.NewRegistry()
	sys, err := ethereum.NewSystem(ethereum.SystemConfig{
		Owner:   owner,
		Custody: custody,
		Tokens: []token.TokenView{
			{Address: pBTCM, Symbol: "pBTCM", Decimals: 18},
			{Address: wBTCO, Symbol: "wBTCO", Decimals: 18},
		},
		Registry: reg,
	})
	require.NoError(t, err)

	srv, err := New(Config{
		Distributor: sys.Distributor,
		Oracle:      sys.Oracle,
		Pools:       sys.Pools,
		Tokens:      sys.Tokens,
		Feed:        sys.Feed,
		Gatherer:    reg,
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Stop()
		ts.Close()
	})
	return &testEnv{sys: sys, srv: srv, ts: ts}
}

func (e *testEnv) wsURL() string {
	return "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/ws"
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestServer_Health(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
}

func TestServer_Metrics(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "rewards_claim_index")
}

func TestServer_RegistryAndTokenCalls(t *testing.T) {
	env := newTestEnv(t)
	pid, err := env.sys.Pools.AddPool(owner, pBTCM, wBTCO)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := rpc.DialContext(ctx, env.ts.URL)
	require.NoError(t, err)
	defer c.Close()

	var length uint64
	require.NoError(t, c.CallContext(ctx, &length, "registry_poolLength"))
	assert.Equal(t, uint64(1), length)

	var pool poolregistry.Pool
	require.NoError(t, c.CallContext(ctx, &pool, "registry_pool", pid))
	assert.Equal(t, pBTCM, pool.DepositToken)
	assert.Equal(t, wBTCO, pool.RewardToken)

	var isPool bool
	require.NoError(t, c.CallContext(ctx, &isPool, "registry_isPool", pool.Address))
	assert.True(t, isPool)

	err = c.CallContext(ctx, &pool, "registry_pool", uint64(7))
	require.Error(t, err)
	assert.ErrorIs(t, jsonrpc.FromRPCError(err), poolregistry.ErrInvalidIndex)

	var tokens []token.TokenView
	require.NoError(t, c.CallContext(ctx, &tokens, "token_all"))
	assert.Len(t, tokens, 2)
}

func TestServer_ClaimOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	sys := env.sys

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

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := rpc.DialContext(ctx, env.ts.URL)
	require.NoError(t, err)
	defer c.Close()

	var receipt distributor.Receipt
	err = c.CallContext(ctx, &receipt, "rewards_claim",
		alice, pid, wBTCO, msg.Amount, uint64(0), hexutil.Bytes(sig))
	require.NoError(t, err)
	assert.Equal(t, msg.Digest(), receipt.Digest)
	assert.Equal(t, uint64(10), l.BalanceOf(alice).Uint64())

	var claimed uint256.Int
	require.NoError(t, c.CallContext(ctx, &claimed, "rewards_userClaimedReward", pid, alice))
	assert.Equal(t, uint64(10), claimed.Uint64())

	// Replaying the same authorization maps back to the replay sentinel.
	err = c.CallContext(ctx, &receipt, "rewards_claim",
		alice, pid, wBTCO, msg.Amount, uint64(0), hexutil.Bytes(sig))
	require.Error(t, err)
	var rpcErr rpc.Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32106, rpcErr.ErrorCode())
	assert.ErrorIs(t, jsonrpc.FromRPCError(err), distributor.ErrAlreadyUsedSignature)
}

func TestServer_EventsSubscription(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := rpc.DialContext(ctx, env.wsURL())
	require.NoError(t, err)
	defer c.Close()

	ch := make(chan json.RawMessage, 4)
	sub, err := c.Subscribe(ctx, jsonrpc.RewardsNamespace, ch, jsonrpc.EventsSubscriptionMethod)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	pid, err := env.sys.Pools.AddPool(owner, pBTCM, wBTCO)
	require.NoError(t, err)

	select {
	case raw := <-ch:
		var wrapped jsonrpc.SubscriptionEvent
		require.NoError(t, json.Unmarshal(raw, &wrapped))
		assert.Equal(t, string(events.PoolAdded), wrapped.Type)
		assert.NotZero(t, wrapped.SentAt)

		decoded, err := ethereum.DecodeEventJSON(events.PoolAdded, wrapped.Payload)
		require.NoError(t, err)
		added, ok := decoded.(poolregistry.PoolAdded)
		require.True(t, ok)
		assert.Equal(t, pid, added.Pid)
	case err := <-sub.Err():
		t.Fatalf("subscription failed: %v", err)
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}
}

func TestServer_EventsRequireWebsocket(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := rpc.DialContext(ctx, env.ts.URL)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Subscribe(ctx, jsonrpc.RewardsNamespace, make(chan json.RawMessage), jsonrpc.EventsSubscriptionMethod)
	assert.ErrorIs(t, err, rpc.ErrNotificationsUnsupported)
}
