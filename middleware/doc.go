// Package middleware exposes an HTTP adapter for session enforcement built
// on top of credlock.Engine validation.
//
// [Guard] reads the Authorization header, validates the signed session
// envelope against the account's current session, and injects the account
// id into the request context for [AccountIDFromContext].
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself — all decisions are delegated to
// [credlock.Engine.ValidateSignedSession].
//
// # What this package must NOT do
//
//   - Parse or create signed envelopes directly (delegates to Engine).
//   - Access the directory or Redis (Engine handles I/O).
//   - Make authorization decisions beyond pass/reject.
package middleware
