package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Iwinswap/iwinswap-staking-rewards-go/pkg/chains"
)

var (
	ErrUnsupportedChain = errors.New("config: unsupported chain_id")
	ErrMissingURL       = errors.New("config: rpc_url is required")
	ErrNotWebsocket     = errors.New("config: rpc_url must be a ws:// or wss:// URL")
)

type ConsoleConfig struct {
	ChainID uint64 `yaml:"chain_id"`
	// RPCURL is the daemon's WebSocket endpoint, e.g. ws://localhost:8545/ws.
	RPCURL string `yaml:"rpc_url"`
}

// LoadConfig reads a configuration file from the given path and unmarshals it
// into a ConsoleConfig struct.
func LoadConfig(path string) (*ConsoleConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg ConsoleConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *ConsoleConfig) Validate() error {
	if !chains.Supported(new(big.Int).SetUint64(c.ChainID)) {
		return fmt.Errorf("%w: %d", ErrUnsupportedChain, c.ChainID)
	}
	if c.RPCURL == "" {
		return ErrMissingURL
	}
	if !strings.HasPrefix(c.RPCURL, "ws://") && !strings.HasPrefix(c.RPCURL, "wss://") {
		return fmt.Errorf("%w: %s", ErrNotWebsocket, c.RPCURL)
	}
	return nil
}
