package ddnsclient

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/netip"
	"runtime/debug"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

// DefaultInterval is the time between update cycles.
const DefaultInterval = 5 * time.Minute

// ErrIPDetection is returned by a cycle whose IP lookup failed.
// The underlying cause is logged, not wrapped.
var ErrIPDetection = errors.New("failed to detect IP address")

// New constructs a DDNSClient for domain.
//
// A Provider must be registered with UsingServer, UsingCloudflare or UsingProvider,
// and a Resolver with UsingServer, UsingResolver or UsingWebResolver.
// When both UsingServer and another resolver option are given, the other resolver wins.
// The remaining options tune the HTTP client, the interval and logging.
func New(domain string, options ...Option) (DDNSClient, error) {
	if domain == "" {
		return nil, fmt.Errorf("ddnsclient.New: domain cannot be empty")
	}
	c := &client{
		domain:    domain,
		interval:  DefaultInterval,
		requester: NewRequester(nil, -1),
		logger:    discard,
		now:       time.Now,
	}
	for i, opt := range options {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("ddnsclient.New: option %d returned an error: %s", i, err)
		}
	}

	if c.Resolver == nil {
		c.Resolver = c.serverResolver
	}
	if c.Resolver == nil {
		return nil, fmt.Errorf("ddnsclient.New: no IP resolver was registered - use ddnsclient.UsingServer or similar")
	}
	if c.Provider == nil {
		return nil, fmt.Errorf("ddnsclient.New: no DNS provider was registered and there is no default option - use ddnsclient.UsingServer or similar")
	}
	if c.interval <= 0 {
		return nil, fmt.Errorf("ddnsclient.New: interval must be positive; got %s", c.interval)
	}

	if c.timeout != nil {
		c.requester.setTimeout(*c.timeout)
	}
	// dependencies registered before WithLogger or UsingHTTPClient still need to see them
	c.propagate()
	return c, nil
}

// Option configures a client. Options are applied in order by New.
type Option func(*client) error

// UsingServer registers a DDNS update server as the Provider
// and, unless another resolver is registered, as the Resolver.
func UsingServer(serverURL, token string) Option {
	return func(c *client) error {
		if serverURL == "" {
			return errors.New("ddnsclient.UsingServer: server URL cannot be empty")
		}
		s := newServerAPI(serverURL, token, c.requester)
		c.serverURL = s.baseURL
		c.serverResolver = s
		c.Provider = s
		return nil
	}
}

// UsingServerResolver asks a DDNS update server for our IP without using it as the Provider.
func UsingServerResolver(serverURL string) Option {
	return func(c *client) error {
		if serverURL == "" {
			return errors.New("ddnsclient.UsingServerResolver: server URL cannot be empty")
		}
		s := newServerAPI(serverURL, "", c.requester)
		c.serverURL = s.baseURL
		c.serverResolver = s
		return nil
	}
}

func UsingCloudflare(token string) Option {
	return func(c *client) (err error) {
		if c.Provider, err = newCloudflareProvider(token); err != nil {
			return fmt.Errorf("ddnsclient.UsingCloudflare: error creating cloudflare DNS provider: %w", err)
		}
		return nil
	}
}

func UsingProvider(provider Provider) Option {
	return func(c *client) error {
		if provider == nil {
			return errors.New("ddnsclient.UsingProvider: provider cannot be nil")
		}
		c.Provider = provider
		return nil
	}
}

func UsingResolver(resolver Resolver) Option {
	return func(c *client) error {
		if resolver == nil {
			return errors.New("ddnsclient.UsingResolver: resolver cannot be nil")
		}
		c.Resolver = resolver
		return nil
	}
}

func UsingWebResolver(serviceURL ...string) Option {
	return func(c *client) (err error) {
		if c.Resolver, err = newWebResolver(c.requester, serviceURL...); err != nil {
			return err
		}
		return nil
	}
}

// UsingHTTPClient replaces the HTTP client used for every request.
// Redirect handling is always done by the client itself, so httpclient.CheckRedirect is ignored.
func UsingHTTPClient(httpclient *http.Client) Option {
	return func(c *client) error {
		c.httpClient = httpclient
		c.requester.setHTTPClient(httpclient)
		return nil
	}
}

// WithTimeout bounds every request. Zero means no timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *client) error {
		if d < 0 {
			return fmt.Errorf("timeout cannot be negative; got %s", d)
		}
		c.timeout = &d
		return nil
	}
}

// WithMaxRedirects sets the redirect cap. A negative n selects DefaultMaxRedirects.
func WithMaxRedirects(n int) Option {
	return func(c *client) error {
		c.requester.setMaxRedirects(n)
		return nil
	}
}

func WithInterval(d time.Duration) Option {
	return func(c *client) error {
		c.interval = d
		return nil
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(c *client) error {
		if logger == nil {
			logger = discard
		}
		c.logger = logger
		return nil
	}
}

// WithDebug adds server response headers and panic stack traces to error logs.
func WithDebug(enabled bool) Option {
	return func(c *client) error {
		c.debug = enabled
		return nil
	}
}

func (c *client) propagate() {
	type setLogger interface {
		SetLogger(*log.Logger)
	}
	type setHTTPClient interface {
		SetHTTPClient(*http.Client)
	}

	if p, ok := c.Provider.(setLogger); ok && c.debug {
		p.SetLogger(c.logger)
	}
	if p, ok := c.Provider.(setHTTPClient); ok {
		p.SetHTTPClient(c.dependencyHTTPClient())
	}
	if r, ok := c.Resolver.(setLogger); ok && c.debug {
		r.SetLogger(c.logger)
	}
	if r, ok := c.Resolver.(setHTTPClient); ok {
		r.SetHTTPClient(c.dependencyHTTPClient())
	}
}

// dependencyHTTPClient returns a client for dependencies that make their own requests,
// bounded by the same timeout as the requester.
func (c *client) dependencyHTTPClient() *http.Client {
	var hc http.Client
	if c.httpClient != nil {
		hc = *c.httpClient
	} else {
		hc = *cleanhttp.DefaultPooledClient()
	}
	hc.Timeout = c.requester.httpClient.Timeout
	return &hc
}

type DDNSClient interface {
	// RunDDNS performs one update cycle and returns its error.
	RunDDNS(ctx context.Context) error
	// CheckAndUpdate performs one update cycle and logs its outcome.
	// Failures are absorbed.
	CheckAndUpdate(ctx context.Context)
	// Run repeats CheckAndUpdate on the configured interval until ctx is done.
	Run(ctx context.Context) error
}

type client struct {
	Resolver
	Provider

	serverResolver Resolver
	serverURL      string
	requester      *Requester
	httpClient     *http.Client
	timeout        *time.Duration

	domain   string
	interval time.Duration
	logger   *log.Logger
	debug    bool
	now      func() time.Time
}

func (c *client) currentIP(ctx context.Context) (netip.Addr, error) {
	c.infof("Detecting public IP address...")
	ip, err := c.Resolve(ctx)
	if err != nil {
		c.logError("Failed to detect IP address", err)
		return netip.Addr{}, ErrIPDetection
	}
	c.infof("Successfully detected IP: %s", ip)
	return ip, nil
}

func (c *client) updateDNS(ctx context.Context, ip netip.Addr) (*UpdateResult, error) {
	c.infof("Updating DNS record for %s to %s...", c.domain, ip)
	result, err := c.UpdateDNS(ctx, c.domain, ip)
	if err != nil {
		c.logError("Failed to update DNS record", err)
		return nil, err
	}
	if result.Success {
		if result.Status == StatusUnchanged {
			c.infof("DNS record is already up-to-date (%s)", ip)
		} else {
			c.infof("DNS record updated successfully to %s", ip)
		}
	}
	return result, nil
}

func (c *client) RunDDNS(ctx context.Context) error {
	ip, err := c.currentIP(ctx)
	if err != nil {
		return err
	}
	if _, err := c.updateDNS(ctx, ip); err != nil {
		return err
	}
	return nil
}

func (c *client) CheckAndUpdate(ctx context.Context) {
	if err := c.RunDDNS(ctx); err != nil {
		if ctx.Err() != nil {
			// shutting down; there is no next cycle to announce
			c.debugf("Update cycle interrupted: %s", err)
			return
		}
		c.errorf("Update cycle failed: %s", err)
		c.infof("Will retry in %s minutes", minutes(c.interval))
		return
	}
	c.infof("Next check scheduled at %s", c.now().Add(c.interval).Format("15:04:05"))
}

// guardedCheck runs one cycle and turns a panic into a log line.
func (c *client) guardedCheck(ctx context.Context) {
	defer func() {
		if v := recover(); v != nil {
			c.errorf("Uncaught exception: %v", v)
			c.debugf("%s", debug.Stack())
			c.errorf("An unexpected error occurred. Client will attempt to continue...")
		}
	}()
	c.CheckAndUpdate(ctx)
}

func (c *client) Run(ctx context.Context) error {
	c.infof("========================================")
	c.infof("DDNS client starting for domain: %s", c.domain)
	if c.serverURL != "" {
		c.infof("Server URL: %s", c.serverURL)
	}
	c.infof("Update interval: %s minutes", minutes(c.interval))
	c.infof("========================================")

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
		c.guardedCheck(ctx)
		timer.Reset(c.interval)
	}
}
