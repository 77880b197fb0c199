package networks

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrUnsupportedNetwork = errors.New("networks: unsupported network")
	ErrInvalidRegistry    = errors.New("networks: invalid registry")
)

// Network describes one EVM network the bridger can talk to. Values are immutable; pass by value.
type Network struct {
	Name        string
	ChainID     uint64
	Symbol      string
	ExplorerURL string
	EIP1559     bool
	RPCURL      string
	// EndpointID is the LayerZero V2 endpoint id; distinct from ChainID.
	EndpointID uint32
	// RequiresPOA marks networks whose block headers carry non-standard extra data.
	RequiresPOA bool
}

func (n Network) String() string { return n.Name }

// TxURL returns the explorer link for a transaction hash.
func (n Network) TxURL(txHash string) string {
	base := n.ExplorerURL
	if base != "" && !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + "tx/" + txHash
}

var (
	Mainnet = Network{
		Name:        "Mainnet",
		ChainID:     1,
		Symbol:      "ETH",
		ExplorerURL: "https://etherscan.io/",
		EIP1559:     true,
		RPCURL:      "https://eth.llamarpc.com",
		EndpointID:  30101,
	}
	Arbitrum = Network{
		Name:        "Arbitrum",
		ChainID:     42161,
		Symbol:      "ETH",
		ExplorerURL: "https://arbiscan.io/",
		EIP1559:     true,
		RPCURL:      "https://arbitrum.drpc.org",
		EndpointID:  30110,
	}
	Optimism = Network{
		Name:        "Optimism",
		ChainID:     10,
		Symbol:      "ETH",
		ExplorerURL: "https://optimistic.etherscan.io/",
		EIP1559:     true,
		RPCURL:      "https://optimism.drpc.org",
		EndpointID:  30111,
	}
	Base = Network{
		Name:        "Base",
		ChainID:     8453,
		Symbol:      "ETH",
		ExplorerURL: "https://basescan.org/",
		EIP1559:     true,
		RPCURL:      "https://base.drpc.org",
		EndpointID:  30184,
	}
	Linea = Network{
		Name:        "Linea",
		ChainID:     59144,
		Symbol:      "ETH",
		ExplorerURL: "https://lineascan.build/",
		EIP1559:     true,
		RPCURL:      "https://linea.drpc.org",
		EndpointID:  30183,
		RequiresPOA: true,
	}
	Scroll = Network{
		Name:        "Scroll",
		ChainID:     534352,
		Symbol:      "ETH",
		ExplorerURL: "https://scrollscan.com/",
		EIP1559:     false,
		RPCURL:      "https://scroll.drpc.org",
		EndpointID:  30214,
	}
)

// Defaults returns the built-in networks in display order.
func Defaults() []Network {
	return []Network{Mainnet, Arbitrum, Optimism, Base, Linea, Scroll}
}

// Registry is a read-only name index over a fixed set of networks.
type Registry struct {
	order  []string
	byName map[string]Network
}

// NewRegistry builds a registry from nets, replacing RPC endpoints with rpcOverrides
// (keyed by case-insensitive network name). Names, chain ids and endpoint ids must be unique.
func NewRegistry(nets []Network, rpcOverrides map[string]string) (*Registry, error) {
	if len(nets) == 0 {
		return nil, fmt.Errorf("%w: no networks", ErrInvalidRegistry)
	}
	overrides := make(map[string]string, len(rpcOverrides))
	for k, v := range rpcOverrides {
		overrides[normalizeName(k)] = strings.TrimSpace(v)
	}

	r := &Registry{byName: make(map[string]Network, len(nets))}
	seenEID := make(map[uint32]string, len(nets))
	seenChain := make(map[uint64]string, len(nets))
	for _, n := range nets {
		key := normalizeName(n.Name)
		if key == "" {
			return nil, fmt.Errorf("%w: empty network name", ErrInvalidRegistry)
		}
		if _, ok := r.byName[key]; ok {
			return nil, fmt.Errorf("%w: duplicate network %q", ErrInvalidRegistry, n.Name)
		}
		if other, ok := seenEID[n.EndpointID]; ok {
			return nil, fmt.Errorf("%w: endpoint id %d used by %s and %s", ErrInvalidRegistry, n.EndpointID, other, n.Name)
		}
		if other, ok := seenChain[n.ChainID]; ok {
			return nil, fmt.Errorf("%w: chain id %d used by %s and %s", ErrInvalidRegistry, n.ChainID, other, n.Name)
		}
		if v, ok := overrides[key]; ok && v != "" {
			n.RPCURL = v
		}
		seenEID[n.EndpointID] = n.Name
		seenChain[n.ChainID] = n.Name
		r.byName[key] = n
		r.order = append(r.order, key)
	}
	return r, nil
}

// Lookup finds a network by case-insensitive name.
func (r *Registry) Lookup(name string) (Network, error) {
	n, ok := r.byName[normalizeName(name)]
	if !ok {
		return Network{}, fmt.Errorf("%w: %q", ErrUnsupportedNetwork, name)
	}
	return n, nil
}

// ByChainID finds a network by its numeric chain id.
func (r *Registry) ByChainID(chainID uint64) (Network, bool) {
	for _, key := range r.order {
		if n := r.byName[key]; n.ChainID == chainID {
			return n, true
		}
	}
	return Network{}, false
}

// All returns every network in registration order.
func (r *Registry) All() []Network {
	out := make([]Network, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.byName[key])
	}
	return out
}

// Names returns the sorted lowercase names, for flag help text.
func (r *Registry) Names() []string {
	out := append([]string(nil), r.order...)
	sort.Strings(out)
	return out
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
