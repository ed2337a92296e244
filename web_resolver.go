package ddnsclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
)

// WebResolver constructs a resolver which uses external web services to look up a "public" IP address.
//
// Each serviceURL must speak http and return a 2xx status,
// with either a JSON object holding an "ip" field
// or a valid IPv4 or IPv6 address as the first line of a plain text body.
// All other responses are considered an error.
//
// If only one serviceURL is given,
// then the resolver will simply return the response.
// If multiple are given,
// then the resolver will request from up to three of them, one at a time,
// and only return successfully if the first two non-error responses agreed on the IP.
// This approach is taken due to the sensitive nature of having control over DNS records.
//
// The recommended approach is to run your own service over https.
func WebResolver(serviceURL ...string) (Resolver, error) {
	return newWebResolver(NewRequester(nil, -1), serviceURL...)
}

func newWebResolver(requester *Requester, serviceURL ...string) (*webResolver, error) {
	var URLs []*url.URL
	for _, u := range serviceURL {
		pu, err := url.Parse(u)
		if err != nil {
			return nil, fmt.Errorf("error parsing URL: %w", err)
		}
		URLs = append(URLs, pu)
	}
	return &webResolver{requester: requester, serviceURLs: URLs}, nil
}

type webResolver struct {
	requester   *Requester
	serviceURLs []*url.URL
}

// Resolve implements ddnsclient.Resolver.
func (wr *webResolver) Resolve(ctx context.Context) (netip.Addr, error) {
	if len(wr.serviceURLs) == 0 {
		return netip.Addr{}, errors.New("no external IP lookup services were provided")
	}
	if len(wr.serviceURLs) == 1 {
		return wr.lookup(ctx, wr.serviceURLs[0])
	}

	const useCount = 3
	n := len(wr.serviceURLs)
	if n > useCount {
		n = useCount
	}

	var errs []error
	var ip netip.Addr
	for _, u := range wr.serviceURLs[:n] {
		addr, err := wr.lookup(ctx, u)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !ip.IsValid() {
			ip = addr
			continue
		}
		if ip == addr {
			return ip, nil
		}
		return netip.Addr{}, errors.New("IP resolvers did not agree on our IP")
	}
	return netip.Addr{}, fmt.Errorf("not enough resolvers responded without errors: %w", errors.Join(errs...))
}

func (wr *webResolver) lookup(ctx context.Context, u *url.URL) (netip.Addr, error) {
	resp, err := wr.requester.Request(ctx, u.String(), http.MethodGet, map[string]string{"Cache-Control": "no-cache"}, nil)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("lookup %s: %w", u, err)
	}

	var ipstring string
	switch d := resp.Data.(type) {
	case map[string]any:
		if s, ok := d["ip"].(string); ok {
			ipstring = s
		} else if s, ok := d["data"].(string); ok {
			ipstring, _, _ = strings.Cut(s, "\n")
		}
	case string:
		ipstring = d
	}

	ip, err := netip.ParseAddr(strings.TrimSpace(ipstring))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("error parsing IP address from response body: %w", err)
	}
	return ip, nil
}
