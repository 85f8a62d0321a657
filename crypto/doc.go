// Package crypto provides the identity and commitment primitives used by the
// aggregation ledger.
//
// Two concerns live here:
//
//   - Ed25519 keys and signatures. A caller's PublicKey is its identity in the
//     ledger (owner, providers, requesters), and the decryption oracle signs
//     its results with the same primitives.
//   - State commitments. Commit binds a decryption request to the exact ordered
//     list of ciphertext handles it targets plus a deployment identity, so that
//     a callback arriving later can be checked against the state it was issued
//     for.
//
// The homomorphic encryption scheme itself lives in package fhe.
package crypto
