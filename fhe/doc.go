// Package fhe is the homomorphic encryption capability of the ledger.
//
// Ciphertexts never leave this package as values: callers hold an opaque
// Handle, the BLAKE3 digest of the serialized ciphertext, and the package
// keeps the ciphertexts themselves in a CiphertextStore. The ledger side
// needs three operations (Capability): encrypt a plaintext, check that a
// handle refers to a produced ciphertext, and add two ciphertexts. The oracle
// side additionally decrypts (Decryptor).
//
// The implementation uses the BGV scheme from lattigo. Plaintexts are
// unsigned integers reduced modulo the plaintext modulus, so sums wrap around
// that modulus.
//
// A Slot models storage that may not hold a ciphertext yet. An empty slot is
// distinct from a slot holding an encryption of zero.
package fhe
