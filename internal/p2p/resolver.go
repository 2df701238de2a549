package p2p

import (
	"context"
	"fmt"

	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
)

// Resolver maps a chat address to the libp2p peer serving it.
type Resolver interface {
	Resolve(ctx context.Context, address string) (peer.AddrInfo, error)
}

// StaticResolver resolves from a fixed table.
type StaticResolver map[string]peer.AddrInfo

// NewStaticResolver parses a table of chat address to /p2p multiaddr.
func NewStaticResolver(routes map[string]string) (StaticResolver, error) {
	r := make(StaticResolver, len(routes))
	for address, s := range routes {
		info, err := ParseAddrInfo(s)
		if err != nil {
			return nil, fmt.Errorf("route for %s: %w", address, err)
		}
		r[address] = info
	}
	return r, nil
}

func (r StaticResolver) Resolve(_ context.Context, address string) (peer.AddrInfo, error) {
	info, ok := r[address]
	if !ok {
		return peer.AddrInfo{}, fmt.Errorf("%w: %s", ErrUnknownPeer, address)
	}
	return info, nil
}

func ParseAddrInfo(s string) (peer.AddrInfo, error) {
	addr, err := ma.NewMultiaddr(s)
	if err != nil {
		return peer.AddrInfo{}, fmt.Errorf("invalid multiaddr %q: %w", s, err)
	}
	info, err := peer.AddrInfoFromP2pAddr(addr)
	if err != nil {
		return peer.AddrInfo{}, fmt.Errorf("invalid peer address %q: %w", s, err)
	}
	return *info, nil
}
