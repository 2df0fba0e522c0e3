// Package authcore provides an embeddable authentication security core:
// argon2id password hashing, AES-GCM secret encryption, signed
// access/refresh tokens with rotation and revocation, per-account lockout
// tracking, and TOTP/backup-code multi-factor authentication behind a
// single [Engine] facade.
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder],
// [Config], the [AccountStore] integration interface, and value types
// (LoginResult, MFAEnrollment, MetricsSnapshot). The cryptographic
// primitives live in their own sub-packages (password, secret, token,
// mfa, tokencache) and never import authcore back.
//
// # What this package must NOT do
//
//   - Persist accounts itself; the caller's [AccountStore] owns storage.
//   - Log, cache, or return plaintext passwords, TOTP seeds, or backup
//     codes beyond the single enrollment response.
//   - Block indefinitely: every cache and store call is bounded by the
//     caller's context or the cache's own call timeout.
package authcore
