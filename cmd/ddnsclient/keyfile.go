package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/Travis-Britz/ddnsclient"
	"golang.org/x/term"
)

// loadToken returns the API token from the environment or the key file,
// running the interactive setup when neither exists.
func loadToken(cfg config, logger *log.Logger) (string, error) {
	if cfg.Token != "" {
		logger.Println("INFO: using token from DDNS_TOKEN")
		return cfg.Token, nil
	}

	_, err := os.Stat(cfg.KeyFile)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Printf("INFO: key file \"%s\" does not exist\n", cfg.KeyFile)
		if err := runSetup(cfg, logger); err != nil {
			return "", fmt.Errorf("setup: %w", err)
		}
	}
	if err := verifyPermissions(cfg.KeyFile); err != nil {
		return "", err
	}

	key, err := readKey(cfg.KeyFile)
	if err != nil {
		return "", err
	}
	if key == "" {
		return "", fmt.Errorf("key file \"%s\" is empty", cfg.KeyFile)
	}
	return key, nil
}

func runSetup(cfg config, logger *log.Logger) error {
	if !term.IsTerminal(int(syscall.Stdin)) {
		return errors.New("no token available: set DDNS_TOKEN or create the key file")
	}
	logger.Println("INFO: running setup")
	time.Sleep(200 * time.Millisecond) // dirty timer hack to try to get stderr and stdout output lines to display in order
	if cfg.Provider == providerCloudflare {
		fmt.Printf("Enter Cloudflare API Key: \n")
	} else {
		fmt.Printf("Enter DDNS token: \n")
	}
	bytekey, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return fmt.Errorf("runSetup: error reading from stdin: %w", err)
	}
	key := strings.TrimSpace(string(bytekey))
	if key == "" {
		return errors.New("runSetup: token cannot be empty")
	}

	if cfg.Provider == providerCloudflare {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logger.Println("INFO: verifying token...")
		if err := ddnsclient.VerifyCloudflareToken(ctx, key); err != nil {
			return err
		}
		logger.Println("INFO: token verified successfully")
	}

	return writeKey(cfg.KeyFile, key, logger)
}

func writeKey(path string, key string, logger *log.Logger) error {
	logger.Printf("INFO: creating key file at \"%s\"\n", path)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("unable to create \"%s\": %w", path, err)
	}
	defer f.Close()
	if _, err := fmt.Fprintln(f, key); err != nil {
		return fmt.Errorf("unable to write \"%s\": %w", path, err)
	}
	logger.Printf("INFO: token written to \"%s\"\n", path)
	return nil
}

func readKey(path string) (key string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("error reading key: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	keyb, _, err := r.ReadLine()
	if err != nil {
		return "", fmt.Errorf("error reading line: %w", err)
	}
	return strings.TrimSpace(string(keyb)), nil
}

func verifyPermissions(path string) error {

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("error checking keyfile permissions: %w", err)
	}

	perms := info.Mode().Perm()
	// Error messages will state that we want 0600,
	// but we'll also accept 0400 which is even more restricted.
	// The file might be provided by some secrets managing software as readonly.
	if perms != 0600 && perms != 0400 {
		return fmt.Errorf("invalid permissions for \"%s\": %w", path, permissionError(perms))
	}

	return nil
}

type permissionError fs.FileMode

func (pe permissionError) Error() string {
	return fmt.Sprintf("expected file permissions \"-rw-------\"; found \"%s\"", fs.FileMode(pe))
}
