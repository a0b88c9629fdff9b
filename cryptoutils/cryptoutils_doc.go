// Package cryptoutils provides the cryptographic helpers of the gateway.
//
// # Passphrase Sealing
//
// Sealer encrypts certificate passphrases before they reach durable storage.
// The AES-256-GCM key is derived from an operator supplied master secret with
// Argon2id, so the master secret itself is never used as a cipher key.
//
// The sealed format is:
//
//	[nonce (12 bytes)][ciphertext || GCM tag]
//
// Callers pass associated data (the storage key of the secret) which binds a
// ciphertext to its location: a sealed value copied to another key fails to open.
//
// # PKCS#12 Certificates
//
// Uploaded A1 certificates are PKCS#12 (.pfx) files. InspectPKCS12 extracts
// the subject and validity of the leaf certificate and PKCS12ToTLS converts
// the file into a tls.Certificate usable for client authentication.
package cryptoutils
