// Package credlock implements the credential lifecycle of an authenticated
// application: password strength, rotation and history rules, single-active
// sessions, time-boxed second-factor challenges, single-use password-reset
// tokens, and best-effort security audit recording.
//
// The package is a library, not a service. An outer HTTP layer integrates
// by implementing [UserDirectory] (account and password-history storage),
// [Mailer] (outbound message content; transport stays with the caller), and
// optionally an [AuditSink]. Ephemeral state — pending second-factor
// challenges and reset tokens — is kept in Redis when a client is supplied
// through [Builder.WithRedis], or in process memory otherwise.
//
// # Architecture boundaries
//
// credlock is the public surface. It exposes [Engine], [Builder], [Config],
// and value types (Account, LoginResult, AuditEvent). Token generation and
// record encoding live under internal/ and are never exported.
//
// # What this package must NOT do
//
//   - Render pages, route requests, or speak SMTP. Callers own transport.
//   - Report success to a caller while the underlying store write did not
//     commit.
//   - Reveal to a caller whether a second-factor code was wrong or merely
//     expired, or whether a reset request named a real account.
//
// Engine methods are safe for concurrent use after [Builder.Build].
package credlock
