// Command ledger runs the noisyagg ledger daemon.
//
// The daemon hosts the ledger HTTP API, the local decryption oracle and the
// audit event store in one process. Ciphertexts and the BGV key pair live in
// memory for the lifetime of the process.
//
// # Configuration File
//
//	log:
//	  level: info
//	  json: false
//	http:
//	  listen_addr: ":8080"
//	  metrics_addr: ":8090"
//	  rate_limit: 50
//	  rate_burst: 100
//	  trust_proxy_headers: false
//	ledger:
//	  deployment_id: "noisyagg-local"
//	  owner_public_key: ""   # Hex Ed25519 key, generates an owner if empty
//	  submission_cooldown: 1s
//	  decryption_cooldown: 10s
//	fhe:
//	  log_n: 13
//	  log_q: [54]
//	  log_p: [54]
//	  plaintext_modulus: 65537
//	oracle:
//	  workers: 4
//	  queue_size: 256
//	  signing_key: ""        # Hex Ed25519 key, generates if empty
//	  callback_url: ""       # Deliver over HTTP instead of in-process
//	postgres:                # Omit for an in-memory event store
//	  host: localhost
//	  port: 5432
//	  user: postgres
//	  password: postgres
//	  database: noisyagg
//
// # Endpoints
//
//	GET  /status                     Ledger-wide state
//	POST /batches                    Open a batch (owner)
//	GET  /batches/{id}               Batch view and release
//	POST /batches/{id}/close         Close a batch (owner)
//	POST /batches/{id}/noise         Set noise magnitude (owner)
//	POST /batches/{id}/submit        Submit an encrypted value (provider)
//	POST /batches/{id}/release       Request the noisy result
//	GET  /requests/{id}              Decryption context
//	GET  /events                     Audit trail
//	POST /admin/...                  Pause, providers, cooldowns, ownership
//	POST /oracle/callback            Oracle result delivery
//
// # Usage
//
//	go run ./cmd/ledger --config=ledger.yaml
//	go run ./cmd/ledger --addr=:8080 --owner=<hex public key>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/flashbots/noisyagg/api/httpserver"
	"github.com/flashbots/noisyagg/cmd/common"
	"github.com/flashbots/noisyagg/crypto"
	"github.com/flashbots/noisyagg/fhe"
	"github.com/flashbots/noisyagg/oracle"
	"github.com/flashbots/noisyagg/protocol"
	"github.com/flashbots/noisyagg/services"
)

func main() {
	var (
		configPath   = flag.String("config", "", "Path to YAML config file")
		addr         = flag.String("addr", ":8080", "HTTP listen address")
		metricsAddr  = flag.String("metrics-addr", ":8090", "Metrics listen address")
		deploymentID = flag.String("deployment-id", "", "Deployment identifier bound into commitments")
		ownerKey     = flag.String("owner", "", "Owner Ed25519 public key (hex, generates if empty)")
		oracleKey    = flag.String("oracle-key", "", "Oracle Ed25519 signing key (hex, generates if empty)")
		callbackURL  = flag.String("callback-url", "", "Deliver oracle results to this URL")
		logLevel     = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	isFlagSet := func(name string) bool {
		found := false
		flag.Visit(func(f *flag.Flag) {
			if f.Name == name {
				found = true
			}
		})
		return found
	}

	cfg, err := loadConfiguration(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	if isFlagSet("addr") {
		cfg.HTTP.ListenAddr = *addr
	}
	if isFlagSet("metrics-addr") {
		cfg.HTTP.MetricsAddr = *metricsAddr
	}
	if *deploymentID != "" {
		cfg.Ledger.DeploymentID = *deploymentID
	}
	if *ownerKey != "" {
		cfg.Ledger.OwnerPublicKey = *ownerKey
	}
	if *oracleKey != "" {
		cfg.Oracle.SigningKey = *oracleKey
	}
	if *callbackURL != "" {
		cfg.Oracle.CallbackURL = *callbackURL
	}
	if isFlagSet("log-level") {
		cfg.Log.Level = *logLevel
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfiguration(configPath string) (*common.Config, error) {
	if configPath != "" {
		return common.LoadConfig(configPath)
	}
	return common.DefaultConfig(), nil
}

func loadOwner(hexKey string) (crypto.PublicKey, error) {
	if hexKey != "" {
		return crypto.NewPublicKeyFromString(hexKey)
	}
	pub, priv, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	fmt.Printf("Generated owner key (keep it): %x\n", priv.Bytes())
	return pub, nil
}

func openEventStore(cfg *common.Config, log *slog.Logger) (services.EventStore, func(), error) {
	if cfg.Postgres == nil {
		return services.NewInMemoryEventStore(), func() {}, nil
	}
	store, err := services.NewPostgresEventStore(cfg.Postgres, log)
	if err != nil {
		return nil, nil, err
	}
	return store, func() { store.Close() }, nil
}

func run(ctx context.Context, cfg *common.Config) error {
	log, err := common.NewLogger(cfg.Log.Level, cfg.Log.JSON)
	if err != nil {
		return err
	}

	owner, err := loadOwner(cfg.Ledger.OwnerPublicKey)
	if err != nil {
		return fmt.Errorf("owner key: %w", err)
	}

	oracleKey, err := common.LoadOrGenerateSigningKey(cfg.Oracle.SigningKey)
	if err != nil {
		return fmt.Errorf("oracle key: %w", err)
	}

	params, err := fhe.NewParameters(cfg.FHE)
	if err != nil {
		return err
	}
	keys := fhe.GenerateKeySet(params)
	ciphertexts := fhe.NewCiphertextStore()
	capability := fhe.NewBGV(params, keys.PublicKey, ciphertexts)
	decryptor := fhe.NewBGVDecryptor(params, keys.SecretKey, ciphertexts)

	localOracle, err := oracle.NewLocalOracle(cfg.Oracle.Config, decryptor, oracleKey, log.With("component", "oracle"))
	if err != nil {
		return fmt.Errorf("create oracle: %w", err)
	}

	events, closeEvents, err := openEventStore(cfg, log)
	if err != nil {
		return fmt.Errorf("event store: %w", err)
	}
	defer closeEvents()

	eventLog := protocol.EventSinkFunc(func(e protocol.Event) {
		log.Info("ledger event", "kind", e.Kind, "batchID", e.BatchID, "requestID", e.RequestID)
	})

	ledger, err := protocol.NewLedger(cfg.ProtocolConfig(), owner, capability, localOracle, protocol.MultiSink{events, eventLog})
	if err != nil {
		return fmt.Errorf("create ledger: %w", err)
	}

	httpLedger, err := services.NewHTTPLedger(ledger, events, nil, log.With("component", "ledger"))
	if err != nil {
		return fmt.Errorf("create http ledger: %w", err)
	}

	server, err := httpserver.New(cfg.HTTPServerConfig(log), httpLedger)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	var callback oracle.Callback = httpLedger
	if cfg.Oracle.CallbackURL != "" {
		callback = oracle.NewHTTPCallback(cfg.Oracle.CallbackURL)
	}

	oracleDone := make(chan error, 1)
	go func() {
		oracleDone <- localOracle.Run(ctx, callback)
	}()

	fmt.Printf("Owner public key: %s\n", owner.String())
	fmt.Printf("Oracle public key: %s\n", localOracle.PublicKey().String())
	fmt.Printf("Ledger listening on %s (deployment %s)\n", cfg.HTTP.ListenAddr, cfg.Ledger.DeploymentID)

	server.RunInBackground()
	<-ctx.Done()

	fmt.Println("Shutting down...")
	server.Shutdown()

	if err := <-oracleDone; err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("oracle: %w", err)
	}
	return nil
}
