package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/netip"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Travis-Britz/ddnsclient"
)

const (
	providerServer     = "server"
	providerCloudflare = "cloudflare"
)

type config struct {
	ServerURL string
	Domain    string
	KeyFile   string
	Token     string
	Interval  time.Duration
	Timeout   time.Duration
	Provider  string
	IP        string
	Lookup    string
	Once      bool
	Verbose   bool
}

type lookupEnv func(string) (string, bool)

// parseConfig reads the environment first so that flags can override it.
func parseConfig(args []string, lookup lookupEnv, output io.Writer) (cfg config, err error) {
	env := func(envvar string, defaultvalue string) string {
		e, found := lookup(envvar)
		if found {
			return e
		}
		return defaultvalue
	}
	home, _ := lookup("HOME")

	interval, err := parseDuration(env("DDNS_INTERVAL", ""), ddnsclient.DefaultInterval)
	if err != nil {
		return cfg, fmt.Errorf("invalid DDNS_INTERVAL: %w", err)
	}
	timeout, err := parseDuration(env("DDNS_TIMEOUT", ""), ddnsclient.DefaultTimeout)
	if err != nil {
		return cfg, fmt.Errorf("invalid DDNS_TIMEOUT: %w", err)
	}
	cfg.Token = env("DDNS_TOKEN", "")
	cfg.Verbose = env("DEBUG", "") != ""

	fs := flag.NewFlagSet("ddnsclient", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&cfg.ServerURL, "s", env("DDNS_SERVER_URL", ""), "Base URL of the DDNS update server")
	fs.StringVar(&cfg.Domain, "d", env("DDNS_DOMAIN", ""), "DNS entry to update")
	fs.StringVar(&cfg.KeyFile, "k", env("DDNS_KEY_FILE", filepath.Join(home, ".ddns-token")), "Path to the API token file")
	fs.DurationVar(&cfg.Interval, "i", interval, "Duration to wait between IP checks")
	fs.DurationVar(&cfg.Timeout, "timeout", timeout, "Timeout for each HTTP request")
	fs.StringVar(&cfg.Provider, "provider", env("DDNS_PROVIDER", providerServer), "Where to push updates: \"server\" or \"cloudflare\"")
	fs.StringVar(&cfg.IP, "ip", "", "IP address to set instead of detecting it")
	fs.StringVar(&cfg.Lookup, "lookup", env("DDNS_LOOKUP", ""), "Comma-separated public IP lookup services used instead of the server")
	fs.BoolVar(&cfg.Once, "once", false, "Run a single update and exit")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Enable verbose logging")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// parseDuration accepts Go durations ("5m") and bare seconds ("300").
func parseDuration(s string, defaultvalue time.Duration) (time.Duration, error) {
	if s == "" {
		return defaultvalue, nil
	}
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(s)
}

func (cfg config) lookupURLs() (urls []string) {
	for _, u := range strings.Split(cfg.Lookup, ",") {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}

func validate(cfg config) error {

	if cfg.Domain == "" {
		return errors.New("domain cannot be empty")
	}

	if !strings.Contains(cfg.Domain, ".") {
		return errors.New("domain must have at least one dot")
	}

	if cfg.Interval <= 0 {
		return fmt.Errorf("interval must be positive; got %s", cfg.Interval)
	}

	if cfg.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative; got %s", cfg.Timeout)
	}

	if cfg.IP != "" {
		if _, err := netip.ParseAddr(cfg.IP); err != nil {
			return fmt.Errorf("invalid ip: %w", err)
		}
	}

	switch cfg.Provider {
	case providerServer:
		if cfg.ServerURL == "" {
			return errors.New("server URL cannot be empty")
		}
	case providerCloudflare:
		if cfg.ServerURL == "" && cfg.IP == "" && len(cfg.lookupURLs()) == 0 {
			return errors.New("cloudflare provider needs a server URL, lookup services or a static ip to find the current IP")
		}
	default:
		return fmt.Errorf("unknown provider %q", cfg.Provider)
	}

	return nil
}

// clientOptions translates cfg into options for ddnsclient.New.
// Resolver options come last so that they win over the server's own resolver.
func clientOptions(cfg config, token string) (opts []ddnsclient.Option, err error) {
	opts = append(opts,
		ddnsclient.WithInterval(cfg.Interval),
		ddnsclient.WithTimeout(cfg.Timeout),
		ddnsclient.WithDebug(cfg.Verbose),
	)

	switch cfg.Provider {
	case providerCloudflare:
		opts = append(opts, ddnsclient.UsingCloudflare(token))
		if cfg.ServerURL != "" {
			opts = append(opts, ddnsclient.UsingServerResolver(cfg.ServerURL))
		}
	default:
		opts = append(opts, ddnsclient.UsingServer(cfg.ServerURL, token))
	}

	switch {
	case cfg.IP != "":
		r, err := ddnsclient.FromString(cfg.IP)
		if err != nil {
			return nil, err
		}
		opts = append(opts, ddnsclient.UsingResolver(r))
	case len(cfg.lookupURLs()) > 0:
		opts = append(opts, ddnsclient.UsingWebResolver(cfg.lookupURLs()...))
	}
	return opts, nil
}
