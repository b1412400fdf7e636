// Package cipher encrypts and decrypts individual roster fields.
//
// Student identifiers and names travel as hex strings of
// nonce(24) || XChaCha20-Poly1305 ciphertext under a 32-byte field key.
// The field key itself is stored wrapped under a password-derived key:
// hex(salt(16) || nonce(24) || ciphertext), with the key-encryption key
// derived by argon2id.
package cipher
