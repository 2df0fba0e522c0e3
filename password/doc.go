// Package password implements one-way adaptive credential hashing using
// argon2id with PHC-formatted output, and constant-time verification.
//
// Plaintext passwords never leave this package: they are hashed or compared
// and discarded. Stored hashes are self-describing, so the work factor can
// be raised without invalidating existing credentials.
package password
