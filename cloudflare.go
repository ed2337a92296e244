package ddnsclient

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/netip"
	"strings"

	"github.com/cloudflare/cloudflare-go"
)

const statusUpdated = "updated"

func newCloudflareProvider(token string) (cf *cloudflareProvider, err error) {
	cf = new(cloudflareProvider)
	// one attempt per call; the update loop is the retry
	cf.api, err = cloudflare.NewWithAPIToken(token, cloudflare.UsingRetryPolicy(0, 1, 1))
	if err != nil {
		return nil, fmt.Errorf("error creating cloudflare api client: %w", err)
	}
	cf.logger = discard
	cf.comment = "managed by ddnsclient"
	cf.ttl = 60
	return cf, nil
}

// cloudflareProvider implements ddnsclient.Provider by editing A/AAAA records directly through the Cloudflare API.
type cloudflareProvider struct {
	api     *cloudflare.API
	logger  *log.Logger
	comment string // optional comment to attach to each new DNS entry
	ttl     int
}

func (cf *cloudflareProvider) SetLogger(logger *log.Logger) { cf.logger = logger }

func (cf *cloudflareProvider) SetHTTPClient(httpclient *http.Client) {
	cloudflare.HTTPClient(httpclient)(cf.api)
}

// UpdateDNS removes every A/AAAA record for domain that does not hold addr and creates one for addr if needed.
func (cf *cloudflareProvider) UpdateDNS(ctx context.Context, domain string, addr netip.Addr) (*UpdateResult, error) {
	if cf.api == nil {
		return nil, errors.New("cloudflare provider was not constructed with UsingCloudflare")
	}
	addr = addr.Unmap()

	zid, err := cf.getZoneIDFromDomain(ctx, domain)
	if err != nil {
		return nil, fmt.Errorf("unable to get zone ID for %s: %w", domain, err)
	}
	cf.logger.Printf("got zone ID: %s\n", zid)
	cf.logger.Printf("looking up A,AAAA records for zone %s...\n", zid)

	records, _, err := cf.api.ListDNSRecords(ctx, cloudflare.ZoneIdentifier(zid), cloudflare.ListDNSRecordsParams{
		Type: "A,AAAA",
		Name: domain,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to list DNS records for %s: %w", domain, err)
	}
	cf.logger.Printf("found %d existing records\n", len(records))

	var found, changed bool
	for _, r := range records {
		a, err := netip.ParseAddr(r.Content)
		if err != nil {
			return nil, fmt.Errorf("error parsing IP from content: %w", err)
		}
		if a.Unmap() == addr {
			cf.logger.Printf("existing record %s matches\n", a)
			found = true
			continue
		}

		cf.logger.Printf("deleting DNS record for %s...\n", a)
		if err := cf.api.DeleteDNSRecord(ctx, cloudflare.ZoneIdentifier(zid), r.ID); err != nil {
			return nil, fmt.Errorf("unable to delete DNS record %s: %w", r.ID, err)
		}
		changed = true
		cf.logger.Printf("successfully deleted record for %s\n", a)
	}

	if !found {
		cf.logger.Printf("creating record for %s...", addr)
		record, err := cf.api.CreateDNSRecord(ctx, cloudflare.ZoneIdentifier(zid), cloudflare.CreateDNSRecordParams{
			Type:    recordType(addr),
			Name:    domain,
			Content: addr.String(),
			ZoneID:  zid,
			TTL:     cf.ttl,
			Comment: cf.comment,
		})
		if err != nil {
			return nil, fmt.Errorf("error creating DNS record: %w", err)
		}
		changed = true
		cf.logger.Printf("successfully added record: %+v\n", record)
	}

	result := &UpdateResult{Success: true, Status: StatusUnchanged}
	if changed {
		result.Status = statusUpdated
	}
	return result, nil
}

func (cf *cloudflareProvider) getZoneIDFromDomain(ctx context.Context, domain string) (zid string, err error) {
	zones, err := cf.api.ListZones(ctx)
	if err != nil {
		return "", fmt.Errorf("error listing zones: %w", err)
	}
	return matchZone(domain, zones)
}

// matchZone picks the zone with the longest name that domain belongs to.
func matchZone(domain string, zones []cloudflare.Zone) (zid string, err error) {
	max := 0
	for _, z := range zones {
		if (domain == z.Name || strings.HasSuffix(domain, "."+z.Name)) && len(z.Name) > max {
			max, zid = len(z.Name), z.ID
		}
	}
	if max == 0 {
		return "", fmt.Errorf("unable to find a zone matching \"%s\"", domain)
	}
	return zid, nil
}

func recordType(a netip.Addr) string {
	if a.Is4() {
		return "A"
	}
	return "AAAA"
}

// VerifyCloudflareToken checks that token is an active Cloudflare API token.
func VerifyCloudflareToken(ctx context.Context, token string) error {
	api, err := cloudflare.NewWithAPIToken(token)
	if err != nil {
		return fmt.Errorf("error creating api client: %w", err)
	}
	result, err := api.VerifyAPIToken(ctx)
	if err != nil {
		return fmt.Errorf("unable to verify api token: %w", err)
	}
	if result.Status != "active" {
		return fmt.Errorf("expected api token status to be \"active\"; got \"%s\"", result.Status)
	}
	return nil
}
