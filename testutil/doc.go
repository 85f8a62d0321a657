/*
Package testutil provides shared fixtures for tests across the repository.

It covers the pieces every ledger test needs and none of them should build by
hand:

	// Small, fast BGV parameters and a fresh key set
	keys := testutil.NewTestKeySet(t)

	// Encryption capability and oracle-side decryptor over one store
	env := testutil.NewFHEEnv(t)
	h, _ := env.Capability.Encrypt(7)
	v, _ := env.Decryptor.Decrypt(h)

	// Deterministic time
	clock := testutil.NewClock(time.Unix(1_700_000_000, 0))
	clock.Advance(time.Minute)

	// Actor identities
	actor := testutil.NewActor(t)

The parameters are NOT secure and exist only to keep tests quick.
*/
package testutil
