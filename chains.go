package orderhub

import "strings"

// ChainConfig describes a network the solver network quotes across. Quotes
// refer to chains by name while signed orders carry the numeric chain id;
// this registry maps between the two.
type ChainConfig struct {
	// Name is the network identifier used in quote payloads (e.g. "base").
	Name string

	// ChainID is the numeric chain id carried in signed orders.
	ChainID uint32
}

// Known chain configurations.
var (
	EthereumMainnet = ChainConfig{Name: "ethereum", ChainID: 1}
	BaseMainnet     = ChainConfig{Name: "base", ChainID: 8453}
	ArbitrumOne     = ChainConfig{Name: "arbitrum", ChainID: 42161}
	OptimismMainnet = ChainConfig{Name: "optimism", ChainID: 10}
	PolygonMainnet  = ChainConfig{Name: "polygon", ChainID: 137}

	EthereumSepolia = ChainConfig{Name: "sepolia", ChainID: 11155111}
	BaseSepolia     = ChainConfig{Name: "base-sepolia", ChainID: 84532}
)

var chains = []ChainConfig{
	EthereumMainnet,
	BaseMainnet,
	ArbitrumOne,
	OptimismMainnet,
	PolygonMainnet,
	EthereumSepolia,
	BaseSepolia,
}

// ChainByName looks up a chain configuration by its network name,
// case-insensitively.
func ChainByName(name string) (ChainConfig, bool) {
	for _, c := range chains {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return ChainConfig{}, false
}

// ChainByID looks up a chain configuration by numeric chain id.
func ChainByID(id uint32) (ChainConfig, bool) {
	for _, c := range chains {
		if c.ChainID == id {
			return c, true
		}
	}
	return ChainConfig{}, false
}
