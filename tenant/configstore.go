package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ruteri/sefaz-config-gateway/interfaces"
	"github.com/ruteri/sefaz-config-gateway/metrics"
)

// configKeyPrefix is the directory of tenant records inside the backend.
const configKeyPrefix = "config/"

// ConfigKey returns the backend key of a tenant record.
func ConfigKey(id interfaces.TenantID) string {
	return fmt.Sprintf("%sconfig_%s.json", configKeyPrefix, id)
}

// CertificateRetention removes uploads a tenant no longer references.
// CertificateVault implements it.
type CertificateRetention interface {
	Fetch(ctx context.Context, storageRef string) ([]byte, error)
	Prune(ctx context.Context, id interfaces.TenantID, keep string)
}

// ConfigStore implements interfaces.ConfigStore on top of a blob backend.
type ConfigStore struct {
	backend   interfaces.BlobBackend
	endpoints interfaces.Endpoints
	locks     *keyedMutex
	retention CertificateRetention
	metrics   *metrics.Metrics
	log       *slog.Logger
	now       func() time.Time
}

// NewConfigStore creates a store writing records to backend. New tenants
// get endpoints as their endpoint table. m may be nil.
func NewConfigStore(backend interfaces.BlobBackend, endpoints interfaces.Endpoints, m *metrics.Metrics, log *slog.Logger) *ConfigStore {
	return &ConfigStore{
		backend:   backend,
		endpoints: endpoints,
		locks:     newKeyedMutex(),
		metrics:   m,
		log:       log,
		now:       clock,
	}
}

// WithCertificateRetention makes AttachCertificate check that the uploaded
// blob still exists and prune older uploads afterwards, both under the
// tenant lock.
func (s *ConfigStore) WithCertificateRetention(r CertificateRetention) *ConfigStore {
	s.retention = r
	return s
}

// clock returns the current time in the precision records are stored with.
func clock() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// Load returns the tenant record, creating the default one on first access.
func (s *ConfigStore) Load(ctx context.Context, id interfaces.TenantID) (*interfaces.TenantConfig, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}

	cfg, err := s.fetch(ctx, id)
	if !errors.Is(err, interfaces.ErrContentNotFound) {
		return cfg, err
	}

	unlock := s.locks.Lock(id.String())
	defer unlock()
	return s.loadOrCreate(ctx, id)
}

// Save validates cfg and replaces the stored record with it.
func (s *ConfigStore) Save(ctx context.Context, cfg *interfaces.TenantConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	unlock := s.locks.Lock(cfg.TenantID.String())
	defer unlock()

	err := s.store(ctx, cfg)
	s.metrics.RecordConfigMutation("save", err)
	return err
}

// SetEnvironment switches the tenant's environment. value must be
// "production" or "homolog"; anything else fails before the record is touched.
func (s *ConfigStore) SetEnvironment(ctx context.Context, id interfaces.TenantID, value string) (*interfaces.TenantConfig, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	env, err := interfaces.ParseEnvironment(value)
	if err != nil {
		return nil, err
	}

	cfg, err := s.mutate(ctx, id, func(cfg *interfaces.TenantConfig) error {
		cfg.Environment = env
		return nil
	}, nil)
	s.metrics.RecordConfigMutation("set_environment", err)
	if err != nil {
		return nil, err
	}

	s.log.Info("Tenant environment updated",
		slog.String("tenantId", id.String()),
		slog.String("environment", env.String()))
	return cfg, nil
}

// AttachCertificate replaces the tenant's certificate reference.
func (s *ConfigStore) AttachCertificate(ctx context.Context, id interfaces.TenantID, ref interfaces.CertificateRef) (*interfaces.TenantConfig, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	if ref.IsEmpty() {
		return nil, fmt.Errorf("%w: empty certificate reference", interfaces.ErrValidation)
	}

	var committed func(*interfaces.TenantConfig)
	if s.retention != nil {
		committed = func(cfg *interfaces.TenantConfig) {
			s.retention.Prune(ctx, id, cfg.Certificate.StorageRef)
		}
	}

	cfg, err := s.mutate(ctx, id, func(cfg *interfaces.TenantConfig) error {
		if err := s.verifyCertificate(ctx, ref); err != nil {
			return err
		}
		cfg.Certificate = ref
		return nil
	}, committed)
	s.metrics.RecordConfigMutation("attach_certificate", err)
	if err != nil {
		return nil, err
	}

	s.log.Info("Tenant certificate attached",
		slog.String("tenantId", id.String()),
		slog.String("storageRef", ref.StorageRef))
	return cfg, nil
}

// verifyCertificate fails when retention already removed the upload, which
// happens when a newer upload of the same tenant was attached first.
func (s *ConfigStore) verifyCertificate(ctx context.Context, ref interfaces.CertificateRef) error {
	if s.retention == nil {
		return nil
	}
	_, err := s.retention.Fetch(ctx, ref.StorageRef)
	switch {
	case errors.Is(err, interfaces.ErrContentNotFound):
		return fmt.Errorf("%w: certificate %s was superseded by a newer upload", interfaces.ErrStorage, ref.StorageRef)
	case err != nil:
		return storageError(err)
	}
	return nil
}

// mutate applies fn to the current record under the tenant lock and stores
// the result. committed, if set, runs after the store while the lock is held.
func (s *ConfigStore) mutate(ctx context.Context, id interfaces.TenantID, fn func(*interfaces.TenantConfig) error, committed func(*interfaces.TenantConfig)) (*interfaces.TenantConfig, error) {
	unlock := s.locks.Lock(id.String())
	defer unlock()

	cfg, err := s.loadOrCreate(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := cfg.Clone()
	if err := fn(updated); err != nil {
		return nil, err
	}
	updated.UpdatedAt = s.now()

	if err := s.store(ctx, updated); err != nil {
		return nil, err
	}
	if committed != nil {
		committed(updated)
	}
	return updated, nil
}

// loadOrCreate must be called with the tenant lock held.
func (s *ConfigStore) loadOrCreate(ctx context.Context, id interfaces.TenantID) (*interfaces.TenantConfig, error) {
	cfg, err := s.fetch(ctx, id)
	if !errors.Is(err, interfaces.ErrContentNotFound) {
		return cfg, err
	}

	cfg = interfaces.NewDefaultTenantConfig(id, s.endpoints, s.now())
	data, err := encodeConfig(cfg)
	if err != nil {
		return nil, err
	}

	creator, exclusive := s.backend.(interfaces.ExclusiveCreator)
	if exclusive {
		err = creator.Create(ctx, ConfigKey(id), data)
	} else {
		err = s.backend.Store(ctx, ConfigKey(id), data)
	}

	switch {
	case errors.Is(err, interfaces.ErrContentExists):
		// Another process created the record first.
		return s.fetch(ctx, id)
	case err != nil:
		return nil, storageError(err)
	}

	s.metrics.RecordConfigCreated()
	s.log.Info("Created default tenant config",
		slog.String("tenantId", id.String()),
		slog.String("environment", cfg.Environment.String()))
	return cfg, nil
}

func (s *ConfigStore) fetch(ctx context.Context, id interfaces.TenantID) (*interfaces.TenantConfig, error) {
	data, err := s.backend.Fetch(ctx, ConfigKey(id))
	if errors.Is(err, interfaces.ErrContentNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, storageError(err)
	}

	var cfg interfaces.TenantConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: corrupt config for tenant %s: %v", interfaces.ErrStorage, id, err)
	}
	if cfg.TenantID != id {
		return nil, fmt.Errorf("%w: config for tenant %s holds tenant %q", interfaces.ErrStorage, id, cfg.TenantID)
	}
	return &cfg, nil
}

func (s *ConfigStore) store(ctx context.Context, cfg *interfaces.TenantConfig) error {
	data, err := encodeConfig(cfg)
	if err != nil {
		return err
	}
	if err := s.backend.Store(ctx, ConfigKey(cfg.TenantID), data); err != nil {
		return storageError(err)
	}
	return nil
}

func encodeConfig(cfg *interfaces.TenantConfig) ([]byte, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode config: %v", interfaces.ErrValidation, err)
	}
	return data, nil
}

// storageError classifies backend failures as ErrStorage unless they already
// carry a more specific kind.
func storageError(err error) error {
	if errors.Is(err, interfaces.ErrStorage) || errors.Is(err, interfaces.ErrValidation) {
		return err
	}
	return fmt.Errorf("%w: %w", interfaces.ErrStorage, err)
}
