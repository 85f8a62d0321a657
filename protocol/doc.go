/*
Package protocol implements the encrypted aggregation ledger.

Data providers submit values that are encrypted on arrival and folded into a
per-batch homomorphic sum. Once the owner closes a batch, anyone may request
its noisy aggregate: the ledger adds the batch's encrypted noise magnitude to
the sum, commits to the exact ciphertext it is about to release, and asks an
external decryption oracle to decrypt it. The oracle answers later through
OnDecryptionResult, which only accepts the answer if

 1. the request exists and has not been finalized yet,
 2. the ciphertext currently stored for the batch still matches the
    commitment taken at request time, and
 3. the oracle's proof authenticates the cleartext.

The gates run in that order and a rejected callback leaves all state untouched.

# Components

  - Store: the explicit ledger state (batches, accumulators, noisy results,
    decryption contexts, releases) plus the Gate and the Throttle.
  - Gate: owner and provider roles and the pause flag.
  - Throttle: per-actor cooldowns for submissions and for decryption requests.
  - Ledger: serializes every operation behind one mutex and wires the store to
    the encryption capability, the oracle and the event sink.

# Time and identity

Every operation takes the caller's public key and the current time as explicit
arguments, so tests drive the ledger with a fake clock.

# Events

Successful operations emit an Event to the configured EventSink while the
ledger lock is held, so the sink observes events in operation order. Sinks
must not call back into the Ledger.
*/
package protocol
