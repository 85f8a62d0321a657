/*
Package services exposes the ledger over HTTP.

# Components

HTTPLedger wraps a protocol.Ledger with a chi router. Actor requests are
protocol.Signed envelopes: the signer's public key is the caller identity, and
every request carries a nonce that must increase strictly per signer. The
signed body names its operation in "op", and an envelope posted to another
operation's route is rejected. The
oracle callback is unsigned; its authenticity is the oracle proof checked by
the ledger. HTTPLedger also implements oracle.Callback for in-process
delivery.

LedgerClient signs and sends requests to an HTTPLedger. It is used by
ledgerctl and by tests.

EventStore keeps the audit trail of ledger events. PostgresEventStore persists
events through lib/pq. InMemoryEventStore is used when no database is
configured.

# Endpoints

	GET  /status
	POST /batches
	GET  /batches/{id}
	POST /batches/{id}/close
	POST /batches/{id}/noise
	POST /batches/{id}/submit
	POST /batches/{id}/release
	GET  /requests/{id}
	GET  /events?batch={id}&request={id}&kind={kind}&limit={n}
	POST /admin/pause
	POST /admin/unpause
	POST /admin/providers
	POST /admin/providers/remove
	POST /admin/cooldown
	POST /admin/owner
	POST /oracle/callback

# Errors

Ledger errors map to status codes: 403 for authority, 423 while paused, 429
during a cooldown, 409 for lifecycle conflicts and replays, 404 for unknown
requests, 422 for integrity and proof failures, 503 when the oracle queue is
full. Malformed bodies and operation mismatches get 400.
*/
package services
