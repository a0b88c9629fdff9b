// Package interfaces defines the core types and interfaces of the SEFAZ
// configuration gateway, separating interface definitions from implementations.
//
// # Tenant Types
//
// TenantID: Opaque tax id (CNPJ) of a tenant company, used as the storage key.
//
// Environment: Closed enumeration selecting the production or homolog
// endpoint. Its numeric value is the tpAmb code sent to the tax authority.
//
// TenantConfig: The durable per-tenant record holding the environment
// selection, the certificate reference and the endpoint table.
//
// # Storage Interfaces
//
// BlobBackend: Keyed durable storage for configuration records and
// certificate blobs (file, S3, or an aggregate of both).
//
// SecretStore: Holds certificate passphrases and hands out opaque references,
// so cleartext never lands in a tenant configuration.
//
// # Service Interfaces
//
// ConfigStore, CertificateVault and StatusChecker describe the three core
// components consumed by the HTTP layer.
//
// # Errors
//
// Every failure is classified by one of the sentinel errors in errors.go and
// should be tested with errors.Is.
package interfaces
