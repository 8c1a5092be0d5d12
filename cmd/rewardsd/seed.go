package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/Iwinswap/iwinswap-staking-rewards-go/cmd/rewardsd/config"
	"github.com/Iwinswap/iwinswap-staking-rewards-go/pkg/chains/ethereum"
	"github.com/Iwinswap/iwinswap-staking-rewards-go/protocols/token"
)

// tokenViews converts the configured tokens into bank registrations.
func tokenViews(cfg *config.DaemonConfig) []token.TokenView {
	views := make([]token.TokenView, 0, len(cfg.Tokens))
	for _, t := range cfg.Tokens {
		views = append(views, token.TokenView{
			Address:  common.HexToAddress(t.Address),
			Symbol:   t.Symbol,
			Decimals: t.Decimals,
		})
	}
	return views
}

// seed brings a freshly built system in line with the configuration.
//
// The server exposes no privileged calls, so the configuration is the only
// admin surface: roles, token balances, custody deposits and reward stats live
// in memory and are applied at every start. The pool arena and the claim
// ledger are persisted; pools are only registered on an empty registry, and
// the epoch and interval go through the maintainer and manager like any other
// update.
func seed(sys *ethereum.System, cfg *config.DaemonConfig, log *slog.Logger) error {
	owner := common.HexToAddress(cfg.Owner)
	manager := owner
	if cfg.Roles.Manager != "" {
		manager = common.HexToAddress(cfg.Roles.Manager)
	}

	assignments := []struct {
		name string
		addr common.Address
		set  func(caller, account common.Address) error
	}{
		{"manager", manager, sys.Roles.SetManager},
		{"maintainer", common.HexToAddress(cfg.Roles.Maintainer), sys.Roles.SetMaintainer},
		{"reward_depositor", common.HexToAddress(cfg.Roles.RewardDepositor), sys.Roles.SetRewardDepositor},
		{"stats_submitter", common.HexToAddress(cfg.Roles.StatsSubmitter), sys.Roles.SetRewardStatsSubmitter},
	}
	for _, a := range assignments {
		if a.addr == (common.Address{}) {
			continue
		}
		if err := a.set(owner, a.addr); err != nil {
			return fmt.Errorf("assign %s: %w", a.name, err)
		}
		log.Info("Role assigned", "role", a.name, "account", a.addr)
	}

	for _, t := range cfg.Tokens {
		ledger, ok := sys.Tokens.Get(common.HexToAddress(t.Address))
		if !ok {
			return fmt.Errorf("token %s not registered", t.Address)
		}
		for account, amount := range t.Balances {
			v, err := uint256.FromDecimal(amount)
			if err != nil {
				return fmt.Errorf("token %s balance: %w", t.Symbol, err)
			}
			if err := ledger.Mint(common.HexToAddress(account), v); err != nil {
				return fmt.Errorf("mint %s: %w", t.Symbol, err)
			}
		}
	}

	if sys.Pools.PoolLength() > 0 {
		log.Info("Pool registry restored", "pools", sys.Pools.PoolLength())
	} else {
		for _, p := range cfg.Pools {
			if _, err := sys.Pools.AddPool(manager, common.HexToAddress(p.DepositToken), common.HexToAddress(p.RewardToken)); err != nil {
				return fmt.Errorf("add pool %s/%s: %w", p.DepositToken, p.RewardToken, err)
			}
		}
	}

	if err := applySchedule(sys, cfg, manager, log); err != nil {
		return err
	}
	if err := fundCustody(sys, cfg, log); err != nil {
		return err
	}
	return publishStats(sys, cfg, log)
}

// applySchedule moves the persisted epoch forward to claim_index and sets the
// claim interval when either differs from the ledger.
func applySchedule(sys *ethereum.System, cfg *config.DaemonConfig, manager common.Address, log *slog.Logger) error {
	epoch, err := sys.Distributor.CurrentEpochIndex()
	if err != nil {
		return fmt.Errorf("read claim index: %w", err)
	}
	switch {
	case cfg.ClaimIndex > epoch:
		if err := sys.Distributor.SetClaimIndex(common.HexToAddress(cfg.Roles.Maintainer), cfg.ClaimIndex); err != nil {
			return fmt.Errorf("set claim index: %w", err)
		}
	case cfg.ClaimIndex < epoch:
		log.Warn("Configured claim_index is behind the ledger, keeping the ledger value",
			"configured", cfg.ClaimIndex, "current", epoch)
	}

	interval, err := sys.Distributor.ClaimInterval()
	if err != nil {
		return fmt.Errorf("read claim interval: %w", err)
	}
	if want := cfg.ClaimIntervalSeconds(); want != interval {
		if err := sys.Distributor.SetClaimInterval(manager, want); err != nil {
			return fmt.Errorf("set claim interval: %w", err)
		}
	}
	return nil
}

// fundCustody deposits each token's remaining reward budget from the reward
// depositor. The remaining budget is the configured deposit less what the
// ledger has already paid out in that token.
func fundCustody(sys *ethereum.System, cfg *config.DaemonConfig, log *slog.Logger) error {
	depositor := common.HexToAddress(cfg.Roles.RewardDepositor)
	custody := sys.Distributor.Address()

	for _, t := range cfg.Tokens {
		if t.Deposit == "" {
			continue
		}
		budget, err := uint256.FromDecimal(t.Deposit)
		if err != nil {
			return fmt.Errorf("token %s deposit: %w", t.Symbol, err)
		}
		tokenAddr := common.HexToAddress(t.Address)
		paid, err := paidOut(sys, tokenAddr)
		if err != nil {
			return fmt.Errorf("token %s paid out: %w", t.Symbol, err)
		}
		if !paid.Lt(budget) {
			log.Warn("Reward budget exhausted", "token", t.Symbol, "budget", budget, "paid", paid)
			continue
		}
		remaining := new(uint256.Int).Sub(budget, paid)

		ledger, _ := sys.Tokens.Get(tokenAddr)
		if err := ledger.Approve(depositor, custody, remaining); err != nil {
			return fmt.Errorf("approve %s: %w", t.Symbol, err)
		}
		if err := sys.Distributor.Deposit(depositor, tokenAddr, remaining); err != nil {
			return fmt.Errorf("deposit %s: %w", t.Symbol, err)
		}
		log.Info("Custody funded", "token", t.Symbol, "amount", remaining, "paid", paid)
	}
	return nil
}

// paidOut sums the claimed totals of every pool rewarding tok.
func paidOut(sys *ethereum.System, tok common.Address) (*uint256.Int, error) {
	total := new(uint256.Int)
	for _, p := range sys.Pools.AllPools() {
		if p.RewardToken != tok {
			continue
		}
		claimed, err := sys.Distributor.PoolClaimedReward(p.Pid)
		if err != nil {
			return nil, err
		}
		if _, overflow := total.AddOverflow(total, claimed); overflow {
			return nil, fmt.Errorf("claimed total overflows for %s", tok)
		}
	}
	return total, nil
}

// publishStats submits the configured reward snapshots as the stats submitter.
func publishStats(sys *ethereum.System, cfg *config.DaemonConfig, log *slog.Logger) error {
	if len(cfg.RewardStats) == 0 {
		return nil
	}
	submitter := common.HexToAddress(cfg.Roles.StatsSubmitter)
	for _, rs := range cfg.RewardStats {
		users := make([]common.Address, 0, len(rs.Rewards))
		rewards := make([]*uint256.Int, 0, len(rs.Rewards))
		for account, amount := range rs.Rewards {
			v, err := uint256.FromDecimal(amount)
			if err != nil {
				return fmt.Errorf("pool %d reward: %w", rs.Pid, err)
			}
			users = append(users, common.HexToAddress(account))
			rewards = append(rewards, v)
		}
		if err := sys.Oracle.SetRewardStats(submitter, rs.Pid, users, rewards); err != nil {
			return fmt.Errorf("publish pool %d stats: %w", rs.Pid, err)
		}
	}
	if err := sys.Oracle.SetLastUpdatedAt(submitter, uint64(time.Now().Unix())); err != nil {
		return fmt.Errorf("stamp reward stats: %w", err)
	}
	log.Info("Reward stats published", "pools", len(cfg.RewardStats))
	return nil
}
