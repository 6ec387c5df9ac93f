// Package fieldcrypt reversibly protects a single sensitive field at rest
// with AES-256-CBC.
//
// Two ciphertext formats exist. The legacy format uses an all-zero IV: it is
// deterministic, so equal plaintexts produce equal ciphertexts, which leaks
// equality and invites dictionary attacks on low-entropy fields. It is kept
// only for byte-compatibility with already-stored values. The current format
// prefixes a "v1:" marker and a random IV. [Cipher.Reveal] accepts both, so
// a store can migrate lazily: protect new values with [RandomIV] and rewrite
// legacy rows as they are read.
//
// # What this package must NOT do
//
//   - Import any other credlock package.
//   - Panic on malformed input — Reveal fails with [ErrDecryptionFailed] and
//     callers substitute a redacted placeholder instead of aborting.
package fieldcrypt
