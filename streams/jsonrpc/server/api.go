package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"

	"github.com/Iwinswap/iwinswap-staking-rewards-go/pkg/events"
	"github.com/Iwinswap/iwinswap-staking-rewards-go/protocols/distributor"
	"github.com/Iwinswap/iwinswap-staking-rewards-go/protocols/poolregistry"
	"github.com/Iwinswap/iwinswap-staking-rewards-go/protocols/token"
	"github.com/Iwinswap/iwinswap-staking-rewards-go/streams/jsonrpc"
)

// Distributor is the claim surface exposed remotely.
type Distributor interface {
	Claim(caller common.Address, req distributor.ClaimRequest) (*distributor.Receipt, error)
	UserClaimedReward(pid uint64, user common.Address) (*uint256.Int, error)
	UserLastClaimAt(pid uint64, user common.Address) (uint64, error)
	PoolClaimedReward(pid uint64) (*uint256.Int, error)
	ClaimInterval() (uint64, error)
	CurrentEpochIndex() (uint64, error)
	IsSignatureUsed(digest common.Hash) (bool, error)
	Balance(token common.Address) (*uint256.Int, error)
}

// Oracle supplies published reward statistics.
type Oracle interface {
	Pending(pid uint64, user common.Address, claimed *uint256.Int) *uint256.Int
	LastUpdatedAt() uint64
}

// Pools is the read side of the pool registry.
type Pools interface {
	AllPools() []poolregistry.Pool
	PoolLength() uint64
	Pool(pid uint64) (poolregistry.Pool, error)
	PoolIndex(address common.Address) (uint64, error)
	IsPool(address common.Address) bool
	IsDeprecatedPool(address common.Address) bool
	TokenPools() *poolregistry.TokenPoolsRegistryView
}

// Tokens is the read side of the token bank.
type Tokens interface {
	All() []token.TokenView
	BalanceOf(token, account common.Address) (*uint256.Int, error)
}

// RewardsAPI is served under the "rewards" namespace.
type RewardsAPI struct {
	distributor Distributor
	oracle      Oracle
	feed        *events.Feed
	bufferSize  int
	logger      *slog.Logger
}

// Claim settles a maintainer-signed authorization for beneficiary. Anyone may
// relay a claim; the beneficiary is bound into the signed message.
func (api *RewardsAPI) Claim(
	beneficiary common.Address,
	pid uint64,
	rewardToken common.Address,
	amount *uint256.Int,
	epochIndex uint64,
	signature hexutil.Bytes,
) (*distributor.Receipt, error) {
	receipt, err := api.distributor.Claim(beneficiary, distributor.ClaimRequest{
		Pid:         pid,
		RewardToken: rewardToken,
		Amount:      amount,
		EpochIndex:  epochIndex,
		Signature:   signature,
	})
	return receipt, jsonrpc.ToRPCError(err)
}

func (api *RewardsAPI) UserClaimedReward(pid uint64, user common.Address) (*uint256.Int, error) {
	v, err := api.distributor.UserClaimedReward(pid, user)
	return v, jsonrpc.ToRPCError(err)
}

func (api *RewardsAPI) UserLastClaimAt(pid uint64, user common.Address) (uint64, error) {
	v, err := api.distributor.UserLastClaimAt(pid, user)
	return v, jsonrpc.ToRPCError(err)
}

func (api *RewardsAPI) PoolClaimedReward(pid uint64) (*uint256.Int, error) {
	v, err := api.distributor.PoolClaimedReward(pid)
	return v, jsonrpc.ToRPCError(err)
}

func (api *RewardsAPI) ClaimInterval() (uint64, error) {
	v, err := api.distributor.ClaimInterval()
	return v, jsonrpc.ToRPCError(err)
}

func (api *RewardsAPI) CurrentEpochIndex() (uint64, error) {
	v, err := api.distributor.CurrentEpochIndex()
	return v, jsonrpc.ToRPCError(err)
}

func (api *RewardsAPI) IsSignatureUsed(digest common.Hash) (bool, error) {
	v, err := api.distributor.IsSignatureUsed(digest)
	return v, jsonrpc.ToRPCError(err)
}

func (api *RewardsAPI) Balance(token common.Address) (*uint256.Int, error) {
	v, err := api.distributor.Balance(token)
	return v, jsonrpc.ToRPCError(err)
}

// PendingReward returns the oracle's published reward for user on pid minus
// what user has already claimed.
func (api *RewardsAPI) PendingReward(pid uint64, user common.Address) (*uint256.Int, error) {
	claimed, err := api.distributor.UserClaimedReward(pid, user)
	if err != nil {
		return nil, jsonrpc.ToRPCError(err)
	}
	return api.oracle.Pending(pid, user, claimed), nil
}

// StatsUpdatedAt returns when the oracle stats were last computed.
func (api *RewardsAPI) StatsUpdatedAt() uint64 {
	return api.oracle.LastUpdatedAt()
}

// Events streams every domain event to the subscriber.
func (api *RewardsAPI) Events(ctx context.Context) (*rpc.Subscription, error) {
	notifier, supported := rpc.NotifierFromContext(ctx)
	if !supported {
		return &rpc.Subscription{}, rpc.ErrNotificationsUnsupported
	}

	rpcSub := notifier.CreateSubscription()
	ch := make(chan events.Event, api.bufferSize)
	feedSub := api.feed.Subscribe(ch)

	go func() {
		defer feedSub.Unsubscribe()
		for {
			select {
			case ev := <-ch:
				payload, err := json.Marshal(ev.Data)
				if err != nil {
					api.logger.Error("Failed to marshal event payload", "kind", ev.Kind, "error", err)
					continue
				}
				err = notifier.Notify(rpcSub.ID, jsonrpc.SubscriptionEvent{
					Type:    string(ev.Kind),
					Payload: payload,
					SentAt:  time.Now().UnixNano(),
				})
				if err != nil {
					api.logger.Debug("Failed to notify subscriber", "subscription", rpcSub.ID, "error", err)
					return
				}
			case <-rpcSub.Err():
				api.logger.Debug("Subscriber left", "subscription", rpcSub.ID)
				return
			case <-feedSub.Err():
				return
			}
		}
	}()

	api.logger.Debug("New event subscriber", "subscription", rpcSub.ID)
	return rpcSub, nil
}

// RegistryAPI is served under the "registry" namespace.
type RegistryAPI struct {
	pools Pools
}

func (api *RegistryAPI) AllPools() []poolregistry.Pool {
	return api.pools.AllPools()
}

func (api *RegistryAPI) PoolLength() uint64 {
	return api.pools.PoolLength()
}

func (api *RegistryAPI) Pool(pid uint64) (poolregistry.Pool, error) {
	p, err := api.pools.Pool(pid)
	return p, jsonrpc.ToRPCError(err)
}

func (api *RegistryAPI) PoolIndex(address common.Address) (uint64, error) {
	pid, err := api.pools.PoolIndex(address)
	return pid, jsonrpc.ToRPCError(err)
}

func (api *RegistryAPI) IsPool(address common.Address) bool {
	return api.pools.IsPool(address)
}

func (api *RegistryAPI) IsDeprecatedPool(address common.Address) bool {
	return api.pools.IsDeprecatedPool(address)
}

func (api *RegistryAPI) TokenPools() *poolregistry.TokenPoolsRegistryView {
	return api.pools.TokenPools()
}

// TokenAPI is served under the "token" namespace.
type TokenAPI struct {
	tokens Tokens
}

func (api *TokenAPI) All() []token.TokenView {
	return api.tokens.All()
}

func (api *TokenAPI) BalanceOf(tok, account common.Address) (*uint256.Int, error) {
	v, err := api.tokens.BalanceOf(tok, account)
	return v, jsonrpc.ToRPCError(err)
}
