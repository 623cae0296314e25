// Package password implements password hashing and verification with Argon2id
// defaults.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Records provisioned by older deployments may still hold bcrypt hashes
// ($2a$, $2b$, $2y$). [Hasher.Verify] accepts them and [Hasher.NeedsUpgrade]
// always reports them, so callers can re-hash on the next successful login.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Import any other goGuard package.
//   - Log plaintext passwords.
package password
