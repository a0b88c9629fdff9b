// Package tenant implements the durable per-tenant state of the gateway.
//
// ConfigStore keeps one JSON record per tenant under config/config_<cnpj>.json
// in a blob backend. A record is created with defaults the first time a
// tenant is accessed; racing first accesses agree on a single record through
// an exclusive create. Mutations are serialised per tenant inside the process
// and every write replaces the whole record atomically.
//
// CertificateVault writes uploaded certificate blobs under names built from
// the tenant id, the upload time and the sanitised original file name, and
// hands the passphrase to a SecretStore so that only an opaque reference is
// ever persisted.
package tenant
