package interfaces

import (
	"context"
	"io"
)

// ConfigStore is the durable store of tenant configuration.
type ConfigStore interface {
	// Load returns the tenant's config, creating and persisting the default
	// record on first access. Never fails with "not found".
	Load(ctx context.Context, id TenantID) (*TenantConfig, error)

	// Save persists the full record atomically.
	Save(ctx context.Context, cfg *TenantConfig) error

	// SetEnvironment validates value and switches the tenant's environment.
	SetEnvironment(ctx context.Context, id TenantID, value string) (*TenantConfig, error)

	// AttachCertificate replaces the tenant's certificate reference.
	AttachCertificate(ctx context.Context, id TenantID, ref CertificateRef) (*TenantConfig, error)
}

// CertificateVault stores uploaded certificate material. It knows nothing
// about TenantConfig; callers attach the returned reference themselves.
type CertificateVault interface {
	Store(ctx context.Context, id TenantID, blob io.Reader, originalName string, passphrase string) (CertificateRef, error)
	Fetch(ctx context.Context, storageRef string) ([]byte, error)
	Passphrase(ctx context.Context, passphraseRef string) (string, error)
}

// StatusChecker checks the tax authority status service for a tenant.
type StatusChecker interface {
	Check(ctx context.Context, cfg *TenantConfig) (*StatusResult, error)
}
