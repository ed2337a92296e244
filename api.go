package ddnsclient

import (
	"context"
	"net/netip"
)

// Resolver discovers the address that the DNS record should point at.
type Resolver interface {
	Resolve(context.Context) (netip.Addr, error)
}

// ResolverFunc is an adapter to allow the use of ordinary functions as a Resolver.
type ResolverFunc func(context.Context) (netip.Addr, error)

// Resolve implements ddnsclient.Resolver.
func (f ResolverFunc) Resolve(ctx context.Context) (netip.Addr, error) {
	return f(ctx)
}

// Provider pushes an address to whatever is serving the DNS record for domain.
type Provider interface {
	UpdateDNS(ctx context.Context, domain string, addr netip.Addr) (*UpdateResult, error)
}

// StatusUnchanged is reported by a Provider when the record already held the address.
const StatusUnchanged = "unchanged"

// UpdateResult is the outcome of a successful Provider call.
type UpdateResult struct {
	Success bool
	Status  string

	// Data is the decoded response body, if the provider received one.
	Data any
}
