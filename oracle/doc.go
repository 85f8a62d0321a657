// Package oracle implements the decryption oracle the ledger delegates
// releases to.
//
// LocalOracle accepts requests synchronously, decrypts them on a pool of
// worker goroutines and delivers each result, with an Ed25519 proof binding
// the request id, the handles and the cleartext, through a Callback.
// Delivery failures are logged and counted; the oracle never retries.
package oracle
