// Command ddnsclient keeps a DNS record pointed at this host's public IP address.
//
// It asks a DDNS update server for the address our requests come from,
// posts it back to the server's update endpoint,
// and repeats on a fixed interval until it receives SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Travis-Britz/ddnsclient"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	logger := ddnsclient.NewConsoleLogger(os.Stdout)

	// variables already present in the environment take precedence over .env
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("error loading .env: %w", err)
	}

	cfg, err := parseConfig(os.Args[1:], os.LookupEnv, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := validate(cfg); err != nil {
		return fmt.Errorf("run: %w", err)
	}
	if cfg.Verbose {
		logger.Printf("DEBUG: config is valid: %+v", redacted(cfg))
	}

	token, err := loadToken(cfg, logger)
	if err != nil {
		return fmt.Errorf("error reading key: %w", err)
	}

	opts, err := clientOptions(cfg, token)
	if err != nil {
		return err
	}
	client, err := ddnsclient.New(cfg.Domain, append(opts, ddnsclient.WithLogger(logger))...)
	if err != nil {
		return fmt.Errorf("error creating ddnsclient: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Once {
		return runOnce(ctx, client, logger)
	}

	if err := client.Run(ctx); err != nil {
		return fmt.Errorf("run: %w", err)
	}
	stopped(logger)
	return nil
}

// runOnce performs a single cycle. A cycle cut short by a termination signal is a clean exit.
func runOnce(ctx context.Context, client ddnsclient.DDNSClient, logger *log.Logger) error {
	if err := client.RunDDNS(ctx); err != nil {
		if ctx.Err() != nil {
			stopped(logger)
			return nil
		}
		return fmt.Errorf("run: %w", err)
	}
	return nil
}

func stopped(logger *log.Logger) {
	logger.Println("INFO: Received termination signal. Shutting down...")
	logger.Println("INFO: DDNS client stopped")
}

func redacted(cfg config) config {
	if cfg.Token != "" {
		cfg.Token = "<redacted>"
	}
	return cfg
}
