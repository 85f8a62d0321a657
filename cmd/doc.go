// Package cmd provides the noisyagg binaries.
//
// # Commands
//
// ledger: The ledger daemon. Hosts the HTTP API, the local decryption oracle
// and the audit event store.
//
//	go run ./cmd/ledger --config=ledger.yaml
//	go run ./cmd/ledger --addr=:8080 --owner=<hex public key>
//
// ledgerctl: CLI for a running ledger. Signs requests with an Ed25519 key.
//
//	go run ./cmd/ledgerctl keygen
//	go run ./cmd/ledgerctl open --key-file=owner.key --noise=5
//	go run ./cmd/ledgerctl submit --key-file=provider.key --batch=1 --value=10
//	go run ./cmd/ledgerctl release --key-file=provider.key --batch=1 --wait
//
// demo: Runs one noisy release in a single process without networking.
//
//	go run ./cmd/demo --values=10,7 --noise=5
//
// # Configuration
//
// The ledger daemon reads a YAML configuration file via the --config flag.
// Command-line flags override config file values. Without a postgres section
// the audit trail is kept in memory.
//
//	http:
//	  listen_addr: ":8080"
//	  metrics_addr: ":8090"
//	ledger:
//	  deployment_id: "noisyagg-local"
//	  owner_public_key: "<hex>"
//	  submission_cooldown: 1s
//	  decryption_cooldown: 10s
//	oracle:
//	  workers: 4
//	postgres:
//	  host: localhost
//	  port: 5432
//	  database: noisyagg
package cmd
