package tenant

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/ruteri/sefaz-config-gateway/cryptoutils"
	"github.com/ruteri/sefaz-config-gateway/interfaces"
	"github.com/ruteri/sefaz-config-gateway/metrics"
)

const (
	maxOriginalNameLength  = 100
	defaultCertificateName = "certificado"

	// createAttempts bounds the retries when two uploads of the same tenant
	// and file name land in the same millisecond.
	createAttempts = 5
)

// CertificateVault implements interfaces.CertificateVault.
type CertificateVault struct {
	backend    interfaces.BlobBackend
	secrets    interfaces.SecretStore
	retainLast int
	metrics    *metrics.Metrics
	log        *slog.Logger
	now        func() time.Time
}

var _ CertificateRetention = (*CertificateVault)(nil)

// NewCertificateVault creates a vault writing blobs to backend and
// passphrases to secrets. retainLast > 0 keeps only that many uploads per
// tenant; 0 keeps every upload.
func NewCertificateVault(backend interfaces.BlobBackend, secrets interfaces.SecretStore, retainLast int, m *metrics.Metrics, log *slog.Logger) *CertificateVault {
	if retainLast < 0 {
		retainLast = 0
	}
	return &CertificateVault{
		backend:    backend,
		secrets:    secrets,
		retainLast: retainLast,
		metrics:    m,
		log:        log,
		now:        clock,
	}
}

// Store writes blob under a name derived from the tenant id, the upload time
// and originalName, and seals passphrase into the secret store.
func (v *CertificateVault) Store(ctx context.Context, id interfaces.TenantID, blob io.Reader, originalName string, passphrase string) (interfaces.CertificateRef, error) {
	ref, err := v.store(ctx, id, blob, originalName, passphrase)
	v.metrics.RecordCertificateUpload(err)
	return ref, err
}

func (v *CertificateVault) store(ctx context.Context, id interfaces.TenantID, blob io.Reader, originalName string, passphrase string) (interfaces.CertificateRef, error) {
	if err := id.Validate(); err != nil {
		return interfaces.CertificateRef{}, err
	}
	if blob == nil {
		return interfaces.CertificateRef{}, fmt.Errorf("%w: certificate file is required", interfaces.ErrValidation)
	}

	data, err := io.ReadAll(blob)
	if err != nil {
		return interfaces.CertificateRef{}, fmt.Errorf("%w: failed to read certificate upload: %v", interfaces.ErrValidation, err)
	}
	if len(data) == 0 {
		return interfaces.CertificateRef{}, fmt.Errorf("%w: certificate file is empty", interfaces.ErrValidation)
	}

	uploadedAt := v.now()
	name, err := v.writeBlob(ctx, id, uploadedAt, sanitizeFileName(originalName), data)
	if err != nil {
		return interfaces.CertificateRef{}, err
	}

	ref := interfaces.CertificateRef{
		StorageRef:   name,
		OriginalName: originalName,
		UploadedAt:   uploadedAt,
	}

	if passphrase != "" {
		ref.PassphraseRef, err = v.secrets.Put(ctx, name, []byte(passphrase))
		if err != nil {
			if delErr := v.backend.Delete(ctx, name); delErr != nil {
				v.log.Warn("Failed to remove certificate after secret store failure",
					slog.String("storageRef", name),
					"err", delErr)
			}
			return interfaces.CertificateRef{}, storageError(err)
		}
	}

	if info, err := cryptoutils.InspectPKCS12(data, passphrase); err == nil {
		ref.Subject = info.Subject
		ref.NotAfter = info.NotAfter.UTC()
	} else {
		v.log.Warn("Uploaded certificate could not be decoded as PKCS#12",
			slog.String("tenantId", id.String()),
			slog.String("storageRef", name),
			"err", err)
	}

	v.log.Info("Stored certificate",
		slog.String("tenantId", id.String()),
		slog.String("storageRef", name),
		slog.String("passphraseRef", ref.PassphraseRef),
		slog.Int("size", len(data)))

	return ref, nil
}

// writeBlob stores data under a fresh name. Backends able to create
// exclusively get a later timestamp when the name is already taken.
func (v *CertificateVault) writeBlob(ctx context.Context, id interfaces.TenantID, uploadedAt time.Time, fileName string, data []byte) (string, error) {
	creator, exclusive := v.backend.(interfaces.ExclusiveCreator)
	if !exclusive {
		name := certificateName(id, uploadedAt.UnixMilli(), fileName)
		if err := v.backend.Store(ctx, name, data); err != nil {
			return "", storageError(err)
		}
		return name, nil
	}

	millis := uploadedAt.UnixMilli()
	for attempt := 0; attempt < createAttempts; attempt++ {
		name := certificateName(id, millis+int64(attempt), fileName)
		err := creator.Create(ctx, name, data)
		if err == nil {
			return name, nil
		}
		if !errors.Is(err, interfaces.ErrContentExists) {
			return "", storageError(err)
		}
	}
	return "", fmt.Errorf("%w: could not allocate a certificate name for tenant %s", interfaces.ErrStorage, id)
}

// Fetch returns the blob behind storageRef. A reference to a missing blob
// is a storage failure.
func (v *CertificateVault) Fetch(ctx context.Context, storageRef string) ([]byte, error) {
	if storageRef == "" {
		return nil, fmt.Errorf("%w: empty certificate reference", interfaces.ErrValidation)
	}

	data, err := v.backend.Fetch(ctx, storageRef)
	if errors.Is(err, interfaces.ErrContentNotFound) {
		return nil, fmt.Errorf("%w: %w", interfaces.ErrStorage, err)
	}
	if err != nil {
		return nil, storageError(err)
	}
	return data, nil
}

// Passphrase resolves a passphrase reference. An empty reference stands for
// a certificate uploaded without passphrase.
func (v *CertificateVault) Passphrase(ctx context.Context, passphraseRef string) (string, error) {
	if passphraseRef == "" {
		return "", nil
	}

	value, err := v.secrets.Get(ctx, passphraseRef)
	if err != nil {
		return "", storageError(err)
	}
	return string(value), nil
}

// Prune removes all but the newest retainLast uploads of the tenant along
// with their passphrases, never touching keep. It is a no-op when every
// upload is retained. Failures are logged; the attach already succeeded.
//
// ConfigStore calls it under the tenant lock once keep is attached, so an
// upload still referenced by the record is never removed.
func (v *CertificateVault) Prune(ctx context.Context, id interfaces.TenantID, keep string) {
	if v.retainLast <= 0 {
		return
	}

	keys, err := v.backend.List(ctx, id.String()+"_")
	if err != nil {
		v.log.Warn("Failed to list certificates for retention",
			slog.String("tenantId", id.String()),
			"err", err)
		return
	}

	// Names embed a fixed-width millisecond timestamp right after the tenant
	// prefix, so lexical order is upload order.
	if len(keys) <= v.retainLast {
		return
	}

	pruned := 0
	for _, key := range keys[:len(keys)-v.retainLast] {
		if key == keep {
			continue
		}
		if err := v.backend.Delete(ctx, key); err != nil {
			v.log.Warn("Failed to prune certificate",
				slog.String("storageRef", key),
				"err", err)
			continue
		}
		if err := v.secrets.Delete(ctx, v.secrets.Ref(key)); err != nil && !errors.Is(err, interfaces.ErrSecretNotFound) {
			v.log.Warn("Failed to prune certificate passphrase",
				slog.String("storageRef", key),
				"err", err)
		}
		pruned++
	}

	if pruned > 0 {
		v.metrics.RecordCertificatesPruned(pruned)
		v.log.Info("Pruned old certificates",
			slog.String("tenantId", id.String()),
			slog.Int("pruned", pruned))
	}
}

func certificateName(id interfaces.TenantID, millis int64, fileName string) string {
	return fmt.Sprintf("%s_%d_%s", id, millis, fileName)
}

// sanitizeFileName keeps the traceable part of an uploaded file name while
// making it safe as a single path segment.
func sanitizeFileName(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	cleaned := strings.TrimLeft(b.String(), ".")
	if len(cleaned) > maxOriginalNameLength {
		cleaned = cleaned[len(cleaned)-maxOriginalNameLength:]
	}
	if strings.Trim(cleaned, "_") == "" {
		return defaultCertificateName
	}
	return cleaned
}
