// Command demo runs a complete noisy release in a single process.
//
// It opens a batch with noise magnitude 5, submits 10 and 7 from a provider,
// closes the batch, requests the noisy result and waits for the local oracle
// to deliver the callback. The released value is 10 + 7 + 5 = 22.
//
// # Usage
//
//	go run ./cmd/demo
//	go run ./cmd/demo --values=3,4,5 --noise=2
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/flashbots/noisyagg/cmd/common"
	"github.com/flashbots/noisyagg/crypto"
	"github.com/flashbots/noisyagg/fhe"
	"github.com/flashbots/noisyagg/oracle"
	"github.com/flashbots/noisyagg/protocol"
)

func main() {
	var (
		values  = flag.String("values", "10,7", "Comma-separated values to submit")
		noise   = flag.Uint64("noise", 5, "Noise magnitude")
		timeout = flag.Duration("timeout", 30*time.Second, "Time to wait for the release")
		verbose = flag.Bool("verbose", false, "Log oracle activity")
	)
	flag.Parse()

	parsed, err := parseValues(*values)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	level := "warn"
	if *verbose {
		level = "debug"
	}
	log, err := common.NewLogger(level, false)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, log, parsed, *noise); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func parseValues(s string) ([]uint64, error) {
	var out []uint64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q: %w", part, err)
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("at least one value is required")
	}
	return out, nil
}

func run(ctx context.Context, log *slog.Logger, values []uint64, noise uint64) error {
	params, err := fhe.NewParameters(fhe.DefaultParametersConfig())
	if err != nil {
		return err
	}
	keys := fhe.GenerateKeySet(params)
	ciphertexts := fhe.NewCiphertextStore()

	oracleKey, err := common.LoadOrGenerateSigningKey("")
	if err != nil {
		return err
	}
	localOracle, err := oracle.NewLocalOracle(oracle.DefaultConfig(),
		fhe.NewBGVDecryptor(params, keys.SecretKey, ciphertexts), oracleKey, log)
	if err != nil {
		return err
	}

	owner, _, err := crypto.GenerateKeyPair()
	if err != nil {
		return err
	}
	provider, _, err := crypto.GenerateKeyPair()
	if err != nil {
		return err
	}

	released := make(chan uint64, 1)
	events := protocol.EventSinkFunc(func(e protocol.Event) {
		fmt.Printf("  event %-22s batch=%d request=%d\n", e.Kind, e.BatchID, e.RequestID)
		if e.Kind == protocol.EventDecryptionCompleted && e.Result != nil {
			released <- *e.Result
		}
	})

	config := &protocol.LedgerConfig{DeploymentID: "noisyagg-demo"}
	ledger, err := protocol.NewLedger(config, owner,
		fhe.NewBGV(params, keys.PublicKey, ciphertexts), localOracle, events)
	if err != nil {
		return err
	}

	go localOracle.Run(ctx, oracle.CallbackFunc(func(_ context.Context, r *oracle.Result) error {
		_, err := ledger.OnDecryptionResult(r.RequestID, r.Cleartext, r.Proof, time.Now())
		return err
	}))

	now := time.Now()
	if err := ledger.AddProvider(owner, provider, now); err != nil {
		return err
	}

	id, err := ledger.OpenBatch(owner, noise, now)
	if err != nil {
		return err
	}
	fmt.Printf("Opened batch %d with noise magnitude %d\n", id, noise)

	var sum uint64
	for _, v := range values {
		if err := ledger.Submit(provider, id, v, now); err != nil {
			return fmt.Errorf("submit %d: %w", v, err)
		}
		sum += v
		fmt.Printf("Submitted encrypted value %d\n", v)
	}

	if err := ledger.CloseBatch(owner, id, now); err != nil {
		return err
	}

	requestID, err := ledger.RequestNoisyResult(ctx, provider, id, now)
	if err != nil {
		return err
	}
	fmt.Printf("Requested decryption %d\n", requestID)

	select {
	case <-ctx.Done():
		return fmt.Errorf("waiting for release: %w", ctx.Err())
	case result := <-released:
		fmt.Printf("Released noisy result: %d (sum %d + noise %d)\n", result, sum, noise)
	}
	return nil
}
