// Package storage provides keyed blob storage with pluggable backends and the
// secret stores used to keep certificate passphrases out of tenant records.
//
// # Blob Backends
//
// Every backend implements interfaces.BlobBackend:
//
//   - FileBackend stores blobs as files below a base directory. Writes go to
//     a temporary file which is renamed over the target, so readers never
//     observe a partially written value. Create uses link(2) to publish a
//     key only if it does not exist yet.
//   - S3Backend stores blobs as objects in an S3 or S3-compatible bucket.
//   - MultiStorageBackend fans writes out to several backends and reads from
//     the first one holding the key.
//
// # Storage URI Format
//
// Backends are specified using URI format:
//
//	[scheme]://[auth@]host[:port][/path][?params]
//
// Supported URI schemes:
//
//   - file:///var/lib/sefaz/certificados
//   - file://./storage/certificados
//   - s3://bucket-name/prefix/?region=sa-east-1
//   - s3://ACCESS_KEY:SECRET_KEY@bucket-name/prefix/?endpoint=http://minio:9000
//
// # Secret Stores
//
// Certificate passphrases are written to an interfaces.SecretStore and only
// the returned reference is persisted with the tenant configuration:
//
//   - SealedSecretStore encrypts values with a cryptoutils.Sealer and keeps
//     the ciphertext in a BlobBackend. References look like "sealed:<key>".
//   - VaultSecretStore writes values to a HashiCorp Vault KV v2 mount.
//     References look like "vault:<key>".
//
// Vault locations use the form:
//
//	vault://vault.example.com:8200/secret/sefaz?tls=true
//
// The token is taken from the VAULT_TOKEN environment variable.
package storage
