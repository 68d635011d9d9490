// Package password hashes and verifies account passwords with Argon2id.
//
// Hashes use the PHC-style string
// $argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt_b64>$<hash_b64>
// and Verify treats stored strings as untrusted: parameters far above the
// configured cost are refused before any key derivation runs.
package password
