// Command ledgerctl is a CLI for a running noisyagg ledger.
//
// Every command that changes ledger state is signed with the key given by
// --key (hex) or --key-file.
//
// # Commands
//
// keygen: Generate an Ed25519 key pair.
//
//	ledgerctl keygen
//
// open, close, noise: Manage batches (owner).
//
//	ledgerctl open --key-file=owner.key --noise=5
//	ledgerctl noise --key-file=owner.key --batch=1 --noise=8
//	ledgerctl close --key-file=owner.key --batch=1
//
// submit: Contribute a value to an active batch (provider).
//
//	ledgerctl submit --key-file=provider.key --batch=1 --value=10
//
// release: Request the noisy result of a closed batch and wait for it.
//
//	ledgerctl release --key-file=provider.key --batch=1 --wait
//
// status, batch, events: Read ledger state.
//
//	ledgerctl status
//	ledgerctl batch --batch=1
//	ledgerctl events --batch=1
//
// pause, unpause, add-provider, remove-provider, cooldown, transfer-owner:
// Administration (owner).
//
//	ledgerctl add-provider --key-file=owner.key --provider=<hex public key>
//	ledgerctl cooldown --key-file=owner.key --action=submission --duration=30s
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flashbots/noisyagg/cmd/common"
	"github.com/flashbots/noisyagg/crypto"
	"github.com/flashbots/noisyagg/protocol"
	"github.com/flashbots/noisyagg/services"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		cancel()
	}()

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "keygen":
		err = runKeygen()
	case "open":
		err = runOpen(ctx, args)
	case "close":
		err = runClose(ctx, args)
	case "noise":
		err = runNoise(ctx, args)
	case "submit":
		err = runSubmit(ctx, args)
	case "release":
		err = runRelease(ctx, args)
	case "status":
		err = runStatus(ctx, args)
	case "batch":
		err = runBatch(ctx, args)
	case "events":
		err = runEvents(ctx, args)
	case "pause", "unpause":
		err = runPause(ctx, cmd, args)
	case "add-provider", "remove-provider":
		err = runProvider(ctx, cmd, args)
	case "cooldown":
		err = runCooldown(ctx, args)
	case "transfer-owner":
		err = runTransferOwner(ctx, args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`ledgerctl - CLI for the noisyagg ledger

Usage:
  ledgerctl <command> [options]

Commands:
  keygen            Generate an Ed25519 key pair
  open              Open a batch
  close             Close a batch
  noise             Set the noise magnitude of a batch
  submit            Submit a value to a batch
  release           Request the noisy result of a batch
  status            Show ledger status
  batch             Show a batch
  events            Show the audit trail
  pause, unpause    Pause or resume the ledger
  add-provider      Grant the provider role
  remove-provider   Revoke the provider role
  cooldown          Change a cooldown window
  transfer-owner    Transfer ownership

Run 'ledgerctl <command> --help' for command-specific options.`)
}

// commandFlags holds the options shared by every command.
type commandFlags struct {
	*flag.FlagSet
	ledgerURL string
	keyHex    string
	keyFile   string
	timeout   time.Duration
}

func newCommandFlags(name string) *commandFlags {
	fs := &commandFlags{FlagSet: flag.NewFlagSet(name, flag.ContinueOnError)}
	fs.StringVar(&fs.ledgerURL, "ledger", "http://localhost:8080", "Ledger API URL")
	fs.StringVar(&fs.keyHex, "key", "", "Signing key (hex)")
	fs.StringVar(&fs.keyFile, "key-file", "", "File holding the signing key (hex)")
	fs.DurationVar(&fs.timeout, "timeout", 30*time.Second, "Request timeout")
	return fs
}

// client builds a LedgerClient. Read-only commands may run without a key.
func (fs *commandFlags) client(requireKey bool) (*services.LedgerClient, error) {
	var key crypto.PrivateKey
	var err error
	switch {
	case fs.keyFile != "":
		key, err = common.LoadSigningKeyFile(fs.keyFile)
	case fs.keyHex != "":
		key, err = common.LoadOrGenerateSigningKey(fs.keyHex)
	case requireKey:
		return nil, errors.New("--key or --key-file is required")
	default:
		key, err = common.LoadOrGenerateSigningKey("")
	}
	if err != nil {
		return nil, err
	}
	return services.NewLedgerClient(fs.ledgerURL, key)
}

func (fs *commandFlags) context(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, fs.timeout)
}

func parsePublicKey(s string) (crypto.PublicKey, error) {
	if s == "" {
		return nil, errors.New("public key is required")
	}
	return crypto.NewPublicKeyFromString(s)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ignoreHelp turns the -h/--help exit of a flag set into a clean return.
func ignoreHelp(err error) error {
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	return err
}

func runKeygen() error {
	pub, priv, err := crypto.GenerateKeyPair()
	if err != nil {
		return err
	}
	fmt.Printf("Public key:  %s\n", pub.String())
	fmt.Printf("Private key: %s\n", hex.EncodeToString(priv.Bytes()))
	return nil
}

func runOpen(ctx context.Context, args []string) error {
	fs := newCommandFlags("open")
	noise := fs.Uint64("noise", 0, "Initial noise magnitude")
	if err := fs.Parse(args); err != nil {
		return ignoreHelp(err)
	}

	c, err := fs.client(true)
	if err != nil {
		return err
	}
	ctx, cancel := fs.context(ctx)
	defer cancel()

	id, err := c.OpenBatch(ctx, *noise)
	if err != nil {
		return err
	}
	fmt.Printf("Opened batch %d\n", id)
	return nil
}

func runClose(ctx context.Context, args []string) error {
	fs := newCommandFlags("close")
	batch := fs.Uint64("batch", 0, "Batch ID")
	if err := fs.Parse(args); err != nil {
		return ignoreHelp(err)
	}

	c, err := fs.client(true)
	if err != nil {
		return err
	}
	ctx, cancel := fs.context(ctx)
	defer cancel()

	if err := c.CloseBatch(ctx, protocol.BatchID(*batch)); err != nil {
		return err
	}
	fmt.Printf("Closed batch %d\n", *batch)
	return nil
}

func runNoise(ctx context.Context, args []string) error {
	fs := newCommandFlags("noise")
	batch := fs.Uint64("batch", 0, "Batch ID")
	noise := fs.Uint64("noise", 0, "Noise magnitude")
	if err := fs.Parse(args); err != nil {
		return ignoreHelp(err)
	}

	c, err := fs.client(true)
	if err != nil {
		return err
	}
	ctx, cancel := fs.context(ctx)
	defer cancel()

	if err := c.SetNoiseMagnitude(ctx, protocol.BatchID(*batch), *noise); err != nil {
		return err
	}
	fmt.Printf("Set noise magnitude of batch %d to %d\n", *batch, *noise)
	return nil
}

func runSubmit(ctx context.Context, args []string) error {
	fs := newCommandFlags("submit")
	batch := fs.Uint64("batch", 0, "Batch ID")
	value := fs.Uint64("value", 0, "Value to submit")
	if err := fs.Parse(args); err != nil {
		return ignoreHelp(err)
	}

	c, err := fs.client(true)
	if err != nil {
		return err
	}
	ctx, cancel := fs.context(ctx)
	defer cancel()

	if err := c.Submit(ctx, protocol.BatchID(*batch), *value); err != nil {
		return err
	}
	fmt.Printf("Submitted to batch %d\n", *batch)
	return nil
}

func runRelease(ctx context.Context, args []string) error {
	fs := newCommandFlags("release")
	batch := fs.Uint64("batch", 0, "Batch ID")
	wait := fs.Bool("wait", false, "Wait for the oracle to deliver the result")
	if err := fs.Parse(args); err != nil {
		return ignoreHelp(err)
	}

	c, err := fs.client(true)
	if err != nil {
		return err
	}
	ctx, cancel := fs.context(ctx)
	defer cancel()

	id := protocol.BatchID(*batch)
	requestID, err := c.RequestRelease(ctx, id)
	if err != nil {
		return err
	}
	fmt.Printf("Requested decryption %d for batch %d\n", requestID, id)

	if !*wait {
		return nil
	}
	release, err := c.AwaitRelease(ctx, id, 500*time.Millisecond)
	if err != nil {
		return err
	}
	fmt.Printf("Noisy result: %d (request %d)\n", release.Result, release.RequestID)
	return nil
}

func runStatus(ctx context.Context, args []string) error {
	fs := newCommandFlags("status")
	if err := fs.Parse(args); err != nil {
		return ignoreHelp(err)
	}

	c, err := fs.client(false)
	if err != nil {
		return err
	}
	ctx, cancel := fs.context(ctx)
	defer cancel()

	status, err := c.Status(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Owner:               %s\n", status.Owner.String())
	fmt.Printf("Paused:              %t\n", status.Paused)
	fmt.Printf("Batches:             %d\n", status.BatchCount)
	fmt.Printf("Submission cooldown: %s\n", status.SubmissionCooldown)
	fmt.Printf("Decryption cooldown: %s\n", status.DecryptionCooldown)
	return nil
}

func runBatch(ctx context.Context, args []string) error {
	fs := newCommandFlags("batch")
	batch := fs.Uint64("batch", 0, "Batch ID")
	if err := fs.Parse(args); err != nil {
		return ignoreHelp(err)
	}

	c, err := fs.client(false)
	if err != nil {
		return err
	}
	ctx, cancel := fs.context(ctx)
	defer cancel()

	view, err := c.Batch(ctx, protocol.BatchID(*batch))
	if err != nil {
		return err
	}
	return printJSON(view)
}

func runEvents(ctx context.Context, args []string) error {
	fs := newCommandFlags("events")
	batch := fs.Uint64("batch", 0, "Batch ID (all batches if 0)")
	if err := fs.Parse(args); err != nil {
		return ignoreHelp(err)
	}

	c, err := fs.client(false)
	if err != nil {
		return err
	}
	ctx, cancel := fs.context(ctx)
	defer cancel()

	events, err := c.Events(ctx, protocol.BatchID(*batch))
	if err != nil {
		return err
	}
	for _, e := range events {
		fmt.Printf("%6d  %s  %-22s batch=%d request=%d\n",
			e.Seq, e.Time.Format(time.RFC3339), e.Kind, e.BatchID, e.RequestID)
	}
	return nil
}

func runPause(ctx context.Context, cmd string, args []string) error {
	fs := newCommandFlags(cmd)
	if err := fs.Parse(args); err != nil {
		return ignoreHelp(err)
	}

	c, err := fs.client(true)
	if err != nil {
		return err
	}
	ctx, cancel := fs.context(ctx)
	defer cancel()

	if cmd == "pause" {
		err = c.Pause(ctx)
	} else {
		err = c.Unpause(ctx)
	}
	if err != nil {
		return err
	}
	fmt.Printf("Ledger %sd\n", cmd)
	return nil
}

func runProvider(ctx context.Context, cmd string, args []string) error {
	fs := newCommandFlags(cmd)
	providerHex := fs.String("provider", "", "Provider public key (hex)")
	if err := fs.Parse(args); err != nil {
		return ignoreHelp(err)
	}

	provider, err := parsePublicKey(*providerHex)
	if err != nil {
		return fmt.Errorf("--provider: %w", err)
	}
	c, err := fs.client(true)
	if err != nil {
		return err
	}
	ctx, cancel := fs.context(ctx)
	defer cancel()

	if cmd == "add-provider" {
		err = c.AddProvider(ctx, provider)
	} else {
		err = c.RemoveProvider(ctx, provider)
	}
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", cmd, provider.String())
	return nil
}

func runCooldown(ctx context.Context, args []string) error {
	fs := newCommandFlags("cooldown")
	action := fs.String("action", "", "Action kind: submission or decryption_request")
	duration := fs.Duration("duration", 0, "Cooldown window")
	if err := fs.Parse(args); err != nil {
		return ignoreHelp(err)
	}

	kind, err := protocol.ParseActionKind(*action)
	if err != nil {
		return err
	}
	c, err := fs.client(true)
	if err != nil {
		return err
	}
	ctx, cancel := fs.context(ctx)
	defer cancel()

	if err := c.SetCooldown(ctx, kind, *duration); err != nil {
		return err
	}
	fmt.Printf("Set %s cooldown to %s\n", kind, *duration)
	return nil
}

func runTransferOwner(ctx context.Context, args []string) error {
	fs := newCommandFlags("transfer-owner")
	newOwnerHex := fs.String("new-owner", "", "New owner public key (hex)")
	if err := fs.Parse(args); err != nil {
		return ignoreHelp(err)
	}

	newOwner, err := parsePublicKey(*newOwnerHex)
	if err != nil {
		return fmt.Errorf("--new-owner: %w", err)
	}
	c, err := fs.client(true)
	if err != nil {
		return err
	}
	ctx, cancel := fs.context(ctx)
	defer cancel()

	if err := c.TransferOwnership(ctx, newOwner); err != nil {
		return err
	}
	fmt.Printf("Ownership transferred to %s\n", newOwner.String())
	return nil
}
