package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Travis-Britz/ddnsclient"
)

func envMap(m map[string]string) lookupEnv {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := parseConfig(nil, envMap(map[string]string{"HOME": "/home/ddns"}), io.Discard)
	if err != nil {
		t.Fatalf("parseConfig failed: %s", err)
	}
	if cfg.Interval != ddnsclient.DefaultInterval {
		t.Fatalf("Expected interval %s; got %s", ddnsclient.DefaultInterval, cfg.Interval)
	}
	if cfg.Timeout != ddnsclient.DefaultTimeout {
		t.Fatalf("Expected timeout %s; got %s", ddnsclient.DefaultTimeout, cfg.Timeout)
	}
	if expected := filepath.Join("/home/ddns", ".ddns-token"); cfg.KeyFile != expected {
		t.Fatalf("Expected key file %q; got %q", expected, cfg.KeyFile)
	}
	if cfg.Provider != providerServer {
		t.Fatalf("Expected provider %q; got %q", providerServer, cfg.Provider)
	}
	if cfg.Verbose {
		t.Fatalf("Expected verbose to be off")
	}
}

func TestParseConfigEnvAndFlags(t *testing.T) {
	env := envMap(map[string]string{
		"DDNS_SERVER_URL": "https://env.example.com",
		"DDNS_DOMAIN":     "home.example.com",
		"DDNS_TOKEN":      "secret",
		"DDNS_INTERVAL":   "300",
		"DDNS_TIMEOUT":    "2s",
		"DEBUG":           "1",
	})
	cfg, err := parseConfig([]string{"-s", "https://flag.example.com", "-i", "1m", "-once"}, env, io.Discard)
	if err != nil {
		t.Fatalf("parseConfig failed: %s", err)
	}
	if expected := "https://flag.example.com"; cfg.ServerURL != expected {
		t.Fatalf("Expected flags to win: %q; got %q", expected, cfg.ServerURL)
	}
	if cfg.Domain != "home.example.com" || cfg.Token != "secret" {
		t.Fatalf("Expected env values; got %+v", cfg)
	}
	if cfg.Interval != time.Minute {
		t.Fatalf("Expected interval 1m; got %s", cfg.Interval)
	}
	if cfg.Timeout != 2*time.Second {
		t.Fatalf("Expected timeout 2s; got %s", cfg.Timeout)
	}
	if !cfg.Once || !cfg.Verbose {
		t.Fatalf("Expected once and verbose; got %+v", cfg)
	}
}

func TestParseConfigErrors(t *testing.T) {
	if _, err := parseConfig(nil, envMap(map[string]string{"DDNS_INTERVAL": "soon"}), io.Discard); err == nil {
		t.Fatalf("Expected an error for a bad DDNS_INTERVAL")
	}
	if _, err := parseConfig([]string{"-nope"}, envMap(nil), io.Discard); err == nil {
		t.Fatalf("Expected an error for an unknown flag")
	}
	if _, err := parseConfig([]string{"-h"}, envMap(nil), io.Discard); !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("Expected flag.ErrHelp; got %v", err)
	}
}

func TestParseDuration(t *testing.T) {
	for in, expected := range map[string]time.Duration{
		"":    time.Hour,
		"300": 5 * time.Minute,
		"90s": 90 * time.Second,
	} {
		got, err := parseDuration(in, time.Hour)
		if err != nil {
			t.Fatalf("parseDuration(%q) failed: %s", in, err)
		}
		if got != expected {
			t.Fatalf("parseDuration(%q): expected %s; got %s", in, expected, got)
		}
	}
}

func TestValidate(t *testing.T) {
	good := config{
		ServerURL: "https://ddns.example.com",
		Domain:    "home.example.com",
		Interval:  time.Minute,
		Provider:  providerServer,
	}
	if err := validate(good); err != nil {
		t.Fatalf("Expected a valid config; got %s", err)
	}

	bad := map[string]func(*config){
		"empty domain":      func(c *config) { c.Domain = "" },
		"domain without .":  func(c *config) { c.Domain = "localhost" },
		"zero interval":     func(c *config) { c.Interval = 0 },
		"negative timeout":  func(c *config) { c.Timeout = -time.Second },
		"bad ip":            func(c *config) { c.IP = "300.1.1.1" },
		"no server":         func(c *config) { c.ServerURL = "" },
		"unknown provider":  func(c *config) { c.Provider = "route53" },
		"cloudflare no src": func(c *config) { c.Provider = providerCloudflare; c.ServerURL = "" },
	}
	for name, mutate := range bad {
		cfg := good
		mutate(&cfg)
		if err := validate(cfg); err == nil {
			t.Fatalf("%s: expected an error", name)
		}
	}

	cf := good
	cf.Provider, cf.ServerURL, cf.Lookup = providerCloudflare, "", "https://icanhazip.com/, "
	if err := validate(cf); err != nil {
		t.Fatalf("Expected cloudflare with lookup services to be valid; got %s", err)
	}
}

func TestClientOptions(t *testing.T) {
	cfg := config{
		ServerURL: "https://ddns.example.com",
		Domain:    "home.example.com",
		Interval:  time.Minute,
		Timeout:   time.Second,
		Provider:  providerServer,
		IP:        "192.0.2.1",
	}
	opts, err := clientOptions(cfg, "secret")
	if err != nil {
		t.Fatalf("clientOptions failed: %s", err)
	}
	if _, err := ddnsclient.New(cfg.Domain, opts...); err != nil {
		t.Fatalf("New failed: %s", err)
	}

	cfg.Provider, cfg.IP, cfg.Lookup = providerCloudflare, "", "https://a.example/,https://b.example/"
	opts, err = clientOptions(cfg, "cf-token")
	if err != nil {
		t.Fatalf("clientOptions failed: %s", err)
	}
	if _, err := ddnsclient.New(cfg.Domain, opts...); err != nil {
		t.Fatalf("New failed: %s", err)
	}
}

func TestLookupURLs(t *testing.T) {
	cfg := config{Lookup: " https://a.example/ ,,https://b.example/"}
	urls := cfg.lookupURLs()
	if len(urls) != 2 || urls[0] != "https://a.example/" || urls[1] != "https://b.example/" {
		t.Fatalf("Unexpected lookup URLs: %q", urls)
	}
}

func TestLoadTokenFromEnv(t *testing.T) {
	token, err := loadToken(config{Token: "secret", KeyFile: "/does/not/exist"}, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("loadToken failed: %s", err)
	}
	if token != "secret" {
		t.Fatalf("Expected %q; got %q", "secret", token)
	}
}

func TestLoadTokenFromKeyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("secret\nignored\n"), 0600); err != nil {
		t.Fatal(err)
	}
	token, err := loadToken(config{KeyFile: path}, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("loadToken failed: %s", err)
	}
	if token != "secret" {
		t.Fatalf("Expected %q; got %q", "secret", token)
	}
}

func TestWriteKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	if err := writeKey(path, "secret", log.New(io.Discard, "", 0)); err != nil {
		t.Fatalf("writeKey failed: %s", err)
	}
	if err := verifyPermissions(path); err != nil {
		t.Fatalf("Expected a 0600 key file; got %s", err)
	}
	if key, err := readKey(path); err != nil || key != "secret" {
		t.Fatalf("Expected to read back %q; got %q, %v", "secret", key, err)
	}
	if err := writeKey(path, "other", log.New(io.Discard, "", 0)); err == nil {
		t.Fatalf("Expected an existing key file to be left alone")
	}
}

func TestVerifyPermissions(t *testing.T) {
	dir := t.TempDir()
	for mode, ok := range map[os.FileMode]bool{0600: true, 0400: true, 0644: false, 0660: false} {
		path := filepath.Join(dir, mode.String())
		if err := os.WriteFile(path, []byte("secret\n"), 0600); err != nil {
			t.Fatal(err)
		}
		if err := os.Chmod(path, mode); err != nil {
			t.Fatal(err)
		}
		err := verifyPermissions(path)
		if ok && err != nil {
			t.Fatalf("Expected %s to be accepted; got %s", mode, err)
		}
		if !ok {
			var pe permissionError
			if !errors.As(err, &pe) {
				t.Fatalf("Expected a permissionError for %s; got %v", mode, err)
			}
		}
	}
}

func TestRedacted(t *testing.T) {
	cfg := redacted(config{Token: "secret"})
	if cfg.Token == "secret" {
		t.Fatalf("Expected the token to be redacted")
	}
}

type cycleFunc func(context.Context) error

func (f cycleFunc) RunDDNS(ctx context.Context) error { return f(ctx) }
func (f cycleFunc) CheckAndUpdate(ctx context.Context) { f(ctx) }
func (f cycleFunc) Run(ctx context.Context) error { return f(ctx) }

func TestRunOnceInterrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var out bytes.Buffer
	err := runOnce(ctx, cycleFunc(func(ctx context.Context) error {
		cancel()
		return ctx.Err()
	}), log.New(&out, "", 0))
	if err != nil {
		t.Fatalf("Expected a clean exit after a termination signal; got %s", err)
	}
	if expected := "INFO: DDNS client stopped"; !strings.Contains(out.String(), expected) {
		t.Fatalf("Expected %q in logs; got:\n%s", expected, out.String())
	}
}

func TestRunOnceFailure(t *testing.T) {
	cause := errors.New("offline")
	err := runOnce(context.Background(), cycleFunc(func(context.Context) error {
		return cause
	}), log.New(io.Discard, "", 0))
	if !errors.Is(err, cause) {
		t.Fatalf("Expected %q; got %v", cause, err)
	}
}
