package ddnsclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"strings"
)

const (
	ipPath     = "/api/ip"
	updatePath = "/api/dns/update"
)

// serverAPI talks to a DDNS update server.
// It implements both ddnsclient.Resolver and ddnsclient.Provider.
type serverAPI struct {
	baseURL   string
	token     string
	requester *Requester
}

func newServerAPI(serverURL, token string, requester *Requester) *serverAPI {
	return &serverAPI{
		baseURL:   strings.TrimRight(serverURL, "/"),
		token:     token,
		requester: requester,
	}
}

// Resolve asks the server which address our request came from.
func (s *serverAPI) Resolve(ctx context.Context) (netip.Addr, error) {
	resp, err := s.requester.Request(ctx, s.baseURL+ipPath, http.MethodGet, nil, nil)
	if err != nil {
		return netip.Addr{}, err
	}
	var body struct {
		IP string `json:"ip"`
	}
	if err := resp.Decode(&body); err != nil {
		return netip.Addr{}, err
	}
	if body.IP == "" {
		return netip.Addr{}, errors.New("response did not contain an ip")
	}
	addr, err := netip.ParseAddr(body.IP)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("error parsing IP address from response: %w", err)
	}
	return addr, nil
}

// UpdateDNS posts addr to the server.
// The server identifies the record by the bearer token, so domain is not sent.
func (s *serverAPI) UpdateDNS(ctx context.Context, domain string, addr netip.Addr) (*UpdateResult, error) {
	header := map[string]string{
		"Authorization": "Bearer " + s.token,
		"Content-Type":  "application/json",
	}
	resp, err := s.requester.Request(ctx, s.baseURL+updatePath, http.MethodPost, header, map[string]string{"ip": addr.String()})
	if err != nil {
		return nil, err
	}

	var body struct {
		Success bool `json:"success"`
		Result  *struct {
			Status string `json:"status"`
		} `json:"result"`
	}
	// plain text arrives wrapped as {"data": ...} and decodes as an unsuccessful result
	if err := resp.Decode(&body); err != nil {
		return nil, fmt.Errorf("unexpected update response: %w", err)
	}

	result := &UpdateResult{Success: body.Success, Data: resp.Data}
	if body.Result != nil {
		result.Status = body.Result.Status
	}
	return result, nil
}
