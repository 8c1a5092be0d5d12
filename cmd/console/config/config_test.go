package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chain_id: 17000\nrpc_url: ws://localhost:8545/ws\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(17000), cfg.ChainID)
	assert.Equal(t, "ws://localhost:8545/ws", cfg.RPCURL)
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		cfg     ConsoleConfig
		wantErr error
	}{
		{"unsupported chain", ConsoleConfig{ChainID: 10, RPCURL: "ws://x"}, ErrUnsupportedChain},
		{"missing url", ConsoleConfig{ChainID: 1}, ErrMissingURL},
		{"http url", ConsoleConfig{ChainID: 1, RPCURL: "http://x"}, ErrNotWebsocket},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, tc.cfg.Validate(), tc.wantErr)
		})
	}

	ok := ConsoleConfig{ChainID: 1, RPCURL: "wss://rewards.example.org/ws"}
	assert.NoError(t, ok.Validate())
}
