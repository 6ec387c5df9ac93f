// Package internal contains helper utilities that are intentionally private
// to credlock: secure random generation for session tokens, reset secrets,
// and one-time codes, plus the reset challenge encoding.
//
// # What this package must NOT do
//
//   - Export types that appear in the public credlock API.
//   - Be imported by any package outside the credlock module.
package internal
