// Package jwt wraps the opaque session token in a signed compact envelope
// for cookie transport.
//
// The envelope proves nothing on its own: validation always unwraps the
// embedded token and compares it against the account's authoritative
// current session token. Signing only stops a cookie from being minted or
// altered outside the engine.
//
// # What this package must NOT do
//
//   - Treat a well-signed envelope as an authenticated session by itself.
//   - Import any other credlock package.
package jwt
