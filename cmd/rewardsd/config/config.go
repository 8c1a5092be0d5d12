package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"

	"github.com/Iwinswap/iwinswap-staking-rewards-go/pkg/chains"
	"github.com/Iwinswap/iwinswap-staking-rewards-go/pkg/logger"
	"github.com/Iwinswap/iwinswap-staking-rewards-go/protocols/distributor"
)

const (
	DefaultListenAddr    = ":8545"
	DefaultDataDir       = "data"
	DefaultClaimInterval = distributor.DefaultClaimInterval * time.Second
)

var (
	ErrUnsupportedChain = errors.New("config: unsupported chain_id")
	ErrInvalidAddress   = errors.New("config: invalid address")
	ErrMissingOwner     = errors.New("config: owner is required")
	ErrMissingCustody   = errors.New("config: custody is required")
	ErrInvalidAmount    = errors.New("config: invalid amount")
	ErrInvalidInterval  = errors.New("config: claim_interval must be whole seconds and not negative")
	ErrDuplicateToken   = errors.New("config: duplicate token")
	ErrUnknownToken     = errors.New("config: pool references unknown token")
	ErrInvalidLogLevel  = errors.New("config: invalid log_level")
	ErrMissingRole      = errors.New("config: role is required")
)

// Roles assigns the privileged accounts at every start. Manager defaults to
// the owner.
type Roles struct {
	Manager         string `yaml:"manager"`
	Maintainer      string `yaml:"maintainer"`
	RewardDepositor string `yaml:"reward_depositor"`
	StatsSubmitter  string `yaml:"stats_submitter"`
}

// Token registers a token ledger and its opening balances. Token ledgers are
// not persisted, so they are rebuilt from this section at every start.
type Token struct {
	Address  string `yaml:"address"`
	Symbol   string `yaml:"symbol"`
	Decimals uint8  `yaml:"decimals"`
	// Balances maps account addresses to decimal amounts minted at every start.
	Balances map[string]string `yaml:"balances"`
	// Deposit is the total reward budget the reward depositor moves into
	// custody. Amounts already paid out by the persisted claim ledger are
	// subtracted at start, so payouts never exceed the budget across restarts.
	Deposit string `yaml:"deposit"`
}

// Pool is a deposit/reward token pair registered on first start.
type Pool struct {
	DepositToken string `yaml:"deposit_token"`
	RewardToken  string `yaml:"reward_token"`
}

// RewardStats is a cumulative reward snapshot for one pool, published by the
// stats submitter at every start.
type RewardStats struct {
	Pid     uint64            `yaml:"pid"`
	Rewards map[string]string `yaml:"rewards"`
}

type DaemonConfig struct {
	ChainID        uint64        `yaml:"chain_id"`
	ListenAddr     string        `yaml:"listen_addr"`
	DataDir        string        `yaml:"data_dir"`
	LogLevel       string        `yaml:"log_level"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	Owner          string        `yaml:"owner"`
	Custody        string        `yaml:"custody"`
	ClaimInterval  time.Duration `yaml:"claim_interval"`
	ClaimIndex     uint64        `yaml:"claim_index"`
	Roles          Roles         `yaml:"roles"`
	Tokens         []Token       `yaml:"tokens"`
	Pools          []Pool        `yaml:"pools"`
	RewardStats    []RewardStats `yaml:"reward_stats"`
}

// LoadConfig reads a configuration file from the given path, applies defaults
// and validates it.
func LoadConfig(path string) (*DaemonConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML config data, applies defaults and validates it.
func Parse(data []byte) (*DaemonConfig, error) {
	cfg := DaemonConfig{
		ListenAddr:    DefaultListenAddr,
		DataDir:       DefaultDataDir,
		ClaimInterval: DefaultClaimInterval,
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate returns the first problem found in the configuration.
func (c *DaemonConfig) Validate() error {
	if !chains.Supported(new(big.Int).SetUint64(c.ChainID)) {
		return fmt.Errorf("%w: %d", ErrUnsupportedChain, c.ChainID)
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.LogLevel)
	}
	if c.Owner == "" {
		return ErrMissingOwner
	}
	if c.Custody == "" {
		return ErrMissingCustody
	}
	if c.ClaimInterval < 0 || c.ClaimInterval%time.Second != 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInterval, c.ClaimInterval)
	}

	for _, a := range []string{c.Owner, c.Custody, c.Roles.Manager, c.Roles.Maintainer, c.Roles.RewardDepositor, c.Roles.StatsSubmitter} {
		if a != "" && !common.IsHexAddress(a) {
			return fmt.Errorf("%w: %q", ErrInvalidAddress, a)
		}
	}

	known := make(map[common.Address]struct{}, len(c.Tokens))
	for _, t := range c.Tokens {
		if !common.IsHexAddress(t.Address) {
			return fmt.Errorf("%w: token %q", ErrInvalidAddress, t.Address)
		}
		addr := common.HexToAddress(t.Address)
		if _, dup := known[addr]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateToken, addr)
		}
		known[addr] = struct{}{}
		for account, amount := range t.Balances {
			if !common.IsHexAddress(account) {
				return fmt.Errorf("%w: balance holder %q", ErrInvalidAddress, account)
			}
			if _, err := uint256.FromDecimal(amount); err != nil {
				return fmt.Errorf("%w: %s balance %q: %v", ErrInvalidAmount, t.Symbol, amount, err)
			}
		}
		if t.Deposit != "" {
			if _, err := uint256.FromDecimal(t.Deposit); err != nil {
				return fmt.Errorf("%w: %s deposit %q: %v", ErrInvalidAmount, t.Symbol, t.Deposit, err)
			}
			if c.Roles.RewardDepositor == "" {
				return fmt.Errorf("%w: reward_depositor for %s deposit", ErrMissingRole, t.Symbol)
			}
		}
	}

	for _, p := range c.Pools {
		for _, a := range []string{p.DepositToken, p.RewardToken} {
			if !common.IsHexAddress(a) {
				return fmt.Errorf("%w: pool token %q", ErrInvalidAddress, a)
			}
			if _, ok := known[common.HexToAddress(a)]; !ok {
				return fmt.Errorf("%w: %s", ErrUnknownToken, a)
			}
		}
	}

	if c.ClaimIndex > 0 && c.Roles.Maintainer == "" {
		return fmt.Errorf("%w: maintainer for claim_index", ErrMissingRole)
	}
	if len(c.RewardStats) > 0 && c.Roles.StatsSubmitter == "" {
		return fmt.Errorf("%w: stats_submitter for reward_stats", ErrMissingRole)
	}
	for _, rs := range c.RewardStats {
		for account, amount := range rs.Rewards {
			if !common.IsHexAddress(account) {
				return fmt.Errorf("%w: pool %d beneficiary %q", ErrInvalidAddress, rs.Pid, account)
			}
			if _, err := uint256.FromDecimal(amount); err != nil {
				return fmt.Errorf("%w: pool %d reward %q: %v", ErrInvalidAmount, rs.Pid, amount, err)
			}
		}
	}
	return nil
}

// ClaimIntervalSeconds returns the claim interval in whole seconds.
func (c *DaemonConfig) ClaimIntervalSeconds() uint64 {
	return uint64(c.ClaimInterval / time.Second)
}

// Level returns the configured log level.
func (c *DaemonConfig) Level() slog.Level {
	level, _ := logger.ParseLevel(c.LogLevel)
	return level
}
