// Package oracle records off-chain reward statistics: the cumulative reward
// each beneficiary has earned per pool, as published by the stats submitter.
//
// The figures are informational. Claims are settled by the distributor against
// maintainer signatures and are never checked against the oracle.
package oracle

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/jonboulle/clockwork"

	"github.com/Iwinswap/iwinswap-staking-rewards-go/pkg/events"
)

// Authorizer resolves the stats submitter capability.
type Authorizer interface {
	IsRewardStatsSubmitter(account common.Address) bool
}

// PoolCounter reports how many pools exist.
type PoolCounter interface {
	PoolLength() uint64
}

// Config holds the configuration for the oracle.
type Config struct {
	Authorizer Authorizer
	Pools      PoolCounter
	Logger     *slog.Logger
	Feed       *events.Feed
	Clock      clockwork.Clock
}

func (c *Config) validate() error {
	if c.Authorizer == nil {
		return errors.New("config: Authorizer is required")
	}
	if c.Pools == nil {
		return errors.New("config: Pools is required")
	}
	return nil
}

// RewardStatsUpdated is emitted after a batch of stats is recorded.
type RewardStatsUpdated struct {
	Pid           uint64           `json:"pid"`
	Beneficiaries []common.Address `json:"beneficiaries"`
}

type statKey struct {
	pid  uint64
	user common.Address
}

// Oracle holds the latest published reward statistics.
type Oracle struct {
	mu            sync.RWMutex
	rewards       map[statKey]*uint256.Int
	lastUpdatedAt uint64

	auth   Authorizer
	pools  PoolCounter
	logger *slog.Logger
	feed   *events.Feed
	clock  clockwork.Clock
}

// New creates an empty oracle.
func New(cfg Config) (*Oracle, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Oracle{
		rewards: make(map[statKey]*uint256.Int),
		auth:    cfg.Authorizer,
		pools:   cfg.Pools,
		logger:  cfg.Logger,
		feed:    cfg.Feed,
		clock:   cfg.Clock,
	}, nil
}

// SetRewardStats overwrites the cumulative reward of each beneficiary on pid.
// beneficiaries[i] is paired with rewards[i].
func (o *Oracle) SetRewardStats(caller common.Address, pid uint64, beneficiaries []common.Address, rewards []*uint256.Int) error {
	if !o.auth.IsRewardStatsSubmitter(caller) {
		return ErrUnauthorized
	}
	if len(beneficiaries) != len(rewards) {
		return fmt.Errorf("%w: %d beneficiaries, %d rewards", ErrRewardStatsUnmatched, len(beneficiaries), len(rewards))
	}
	if pid >= o.pools.PoolLength() {
		return fmt.Errorf("%w: %d", ErrInvalidPid, pid)
	}
	for i, r := range rewards {
		if r == nil {
			return fmt.Errorf("%w: index %d", ErrNilReward, i)
		}
	}

	o.mu.Lock()
	for i, user := range beneficiaries {
		o.rewards[statKey{pid, user}] = rewards[i].Clone()
	}
	o.mu.Unlock()

	o.logger.Info("Reward stats updated", "pid", pid, "beneficiaries", len(beneficiaries))
	o.feed.Send(events.RewardStatsUpdated, RewardStatsUpdated{
		Pid:           pid,
		Beneficiaries: append([]common.Address(nil), beneficiaries...),
	}, o.clock.Now())
	return nil
}

// SetLastUpdatedAt records when the stats were last computed off-chain.
func (o *Oracle) SetLastUpdatedAt(caller common.Address, ts uint64) error {
	if !o.auth.IsRewardStatsSubmitter(caller) {
		return ErrUnauthorized
	}
	o.mu.Lock()
	o.lastUpdatedAt = ts
	o.mu.Unlock()
	o.logger.Debug("Reward stats timestamp updated", "last_updated_at", ts)
	return nil
}

// UserReward returns user's published cumulative reward on pid, or zero.
func (o *Oracle) UserReward(pid uint64, user common.Address) *uint256.Int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if r, ok := o.rewards[statKey{pid, user}]; ok {
		return r.Clone()
	}
	return new(uint256.Int)
}

// LastUpdatedAt returns the last recorded stats timestamp.
func (o *Oracle) LastUpdatedAt() uint64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.lastUpdatedAt
}

// Pending returns how much of user's published reward on pid exceeds claimed.
// It never underflows.
func (o *Oracle) Pending(pid uint64, user common.Address, claimed *uint256.Int) *uint256.Int {
	reward := o.UserReward(pid, user)
	if claimed == nil {
		return reward
	}
	if reward.Cmp(claimed) <= 0 {
		return new(uint256.Int)
	}
	return reward.Sub(reward, claimed)
}
