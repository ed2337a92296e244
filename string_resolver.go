package ddnsclient

import (
	"context"
	"fmt"
	"net/netip"
)

// FromString constructs a resolver that always returns the IP parsed from addr.
// The address is validated up front so that a typo fails at startup instead of every cycle.
func FromString(addr string) (Resolver, error) {
	if _, err := netip.ParseAddr(addr); err != nil {
		return nil, fmt.Errorf("unable to parse IP: %w", err)
	}
	return stringResolver(addr), nil
}

type stringResolver string

func (s stringResolver) Resolve(context.Context) (netip.Addr, error) {
	addr, err := netip.ParseAddr(string(s))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("unable to parse IP: %w", err)
	}
	return addr, nil
}
