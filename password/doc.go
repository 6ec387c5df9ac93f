// Package password implements password hashing and verification with Argon2id defaults.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Verification is three-valued ([Failed], [Match], [MatchNeedsRehash]): a
// match against a hash produced with weaker parameters reports
// MatchNeedsRehash so the caller can re-hash on the next successful login.
// Reuse checks treat any non-Failed outcome as a match.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Password policy (length,
// character classes, rotation, reuse history) is enforced by the Engine.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords — callers supply plaintext and receive hashes.
//   - Import any other credlock package.
//   - Log plaintext passwords or hash parameters at runtime.
package password
