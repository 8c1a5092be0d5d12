// Package chains names the networks a rewards system can be deployed for.
package chains

import "math/big"

var (
	EthereumMainnet = big.NewInt(1)
	Sepolia         = big.NewInt(11155111)
	Holesky         = big.NewInt(17000)
)

var names = map[uint64]string{
	1:        "mainnet",
	11155111: "sepolia",
	17000:    "holesky",
}

// Name returns the network name for id, or "" if the chain is not supported.
func Name(id *big.Int) string {
	if id == nil || !id.IsUint64() {
		return ""
	}
	return names[id.Uint64()]
}

// Supported reports whether id names a known network.
func Supported(id *big.Int) bool {
	return Name(id) != ""
}
