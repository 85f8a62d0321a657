// Package common provides shared utilities for the noisyagg commands.
//
// This package contains helpers used across the binaries (ledger, ledgerctl,
// demo) to reduce code duplication:
//
//   - YAML configuration loading with defaults
//   - Key loading and generation for Ed25519 signing keys
//   - Logger construction
package common

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/flashbots/noisyagg/crypto"
)

// LoadOrGenerateSigningKey loads an Ed25519 private key from a hex string,
// or generates a new key pair if hexKey is empty.
func LoadOrGenerateSigningKey(hexKey string) (crypto.PrivateKey, error) {
	if hexKey != "" {
		key, err := crypto.NewPrivateKeyFromString(strings.TrimSpace(hexKey))
		if err != nil {
			return nil, fmt.Errorf("invalid signing key: %w", err)
		}
		return key, nil
	}
	_, privKey, err := crypto.GenerateKeyPair()
	return privKey, err
}

// LoadSigningKeyFile reads a hex-encoded Ed25519 private key from path.
func LoadSigningKeyFile(path string) (crypto.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading key file: %w", err)
	}
	return LoadOrGenerateSigningKey(strings.TrimSpace(string(data)))
}

// NewLogger creates the process logger. level is one of debug, info, warn
// or error.
func NewLogger(level string, json bool) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler), nil
}
