package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/ruteri/sefaz-config-gateway/api/confighandler"
	"github.com/ruteri/sefaz-config-gateway/cryptoutils"
	"github.com/ruteri/sefaz-config-gateway/interfaces"
	"github.com/ruteri/sefaz-config-gateway/metrics"
	"github.com/ruteri/sefaz-config-gateway/sefaz"
	"github.com/ruteri/sefaz-config-gateway/storage"
	"github.com/ruteri/sefaz-config-gateway/tenant"
)

const sealedSecretStore = "sealed"

// gatewayConfig is the flag-independent part of the gateway setup.
type gatewayConfig struct {
	StorageDir          string
	CertificateBackends string
	CertificateRetain   int
	SecretStore         string
	SecretKey           string
	MaxUploadBytes      int64

	Endpoints       interfaces.Endpoints
	CUF             string
	Timeout         time.Duration
	PrettyXML       bool
	ClientCertMTLS  bool
	StatusRateLimit float64
	StatusRateBurst int
}

// gateway holds the assembled components of one process.
type gateway struct {
	handler *confighandler.Handler
	limiter *confighandler.TenantRateLimiter
}

func newGateway(cfg gatewayConfig, m *metrics.Metrics, log *slog.Logger) (*gateway, error) {
	configBackend, err := storage.NewFileBackend(cfg.StorageDir, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open config storage: %w", err)
	}
	configs := tenant.NewConfigStore(configBackend, cfg.Endpoints, m, log)

	certBackend, err := certificateBackend(cfg, log)
	if err != nil {
		return nil, err
	}

	secrets, err := secretStore(cfg, configBackend, log)
	if err != nil {
		return nil, err
	}
	log.Info("Certificate storage configured",
		slog.String("backend", certBackend.LocationURI()),
		slog.String("secretStore", secrets.Name()),
		slog.Int("retainLast", cfg.CertificateRetain))

	certs := tenant.NewCertificateVault(certBackend, secrets, cfg.CertificateRetain, m, log)
	configs.WithCertificateRetention(certs)

	opts := sefaz.Options{
		Timeout:   cfg.Timeout,
		CUF:       cfg.CUF,
		PrettyXML: cfg.PrettyXML,
		Metrics:   m,
		Log:       log,
	}
	if cfg.ClientCertMTLS {
		opts.ClientCertificates = sefaz.NewVaultCertificateLoader(certs)
	}
	status, err := sefaz.NewStatusClient(opts)
	if err != nil {
		return nil, err
	}

	g := &gateway{
		handler: confighandler.NewHandler(configs, certs, status, log).
			WithMaxUploadBytes(cfg.MaxUploadBytes).
			WithMetrics(m),
	}
	if cfg.StatusRateLimit > 0 {
		g.limiter = confighandler.NewTenantRateLimiter(cfg.StatusRateLimit, cfg.StatusRateBurst)
		g.handler.WithRateLimiter(g.limiter)
	}
	return g, nil
}

// start runs background maintenance until ctx is done.
func (g *gateway) start(ctx context.Context) {
	if g.limiter != nil {
		g.limiter.StartJanitor(ctx)
	}
}

func certificateBackend(cfg gatewayConfig, log *slog.Logger) (interfaces.BlobBackend, error) {
	raw := cfg.CertificateBackends
	if raw == "" {
		raw = "file://" + filepath.Join(cfg.StorageDir, "certificados")
	}

	locations, err := storage.ParseLocations(raw)
	if err != nil {
		return nil, err
	}
	backend, err := storage.NewStorageBackendFactory(log).CreateMultiBackend(locations)
	if err != nil {
		return nil, fmt.Errorf("failed to configure certificate storage: %w", err)
	}
	return backend, nil
}

func secretStore(cfg gatewayConfig, backend interfaces.BlobBackend, log *slog.Logger) (interfaces.SecretStore, error) {
	if cfg.SecretStore == "" || cfg.SecretStore == sealedSecretStore {
		if cfg.SecretKey == "" {
			return nil, errors.New("secret-key is required for the sealed secret store")
		}
		key, err := hex.DecodeString(strings.TrimPrefix(cfg.SecretKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("invalid secret-key: %w", err)
		}
		sealer, err := cryptoutils.NewSealer(key)
		if err != nil {
			return nil, err
		}
		return storage.NewSealedSecretStore(backend, sealer, log), nil
	}

	loc, err := interfaces.NewStorageBackendLocation(cfg.SecretStore)
	if err != nil {
		return nil, err
	}
	if !loc.IsVault() {
		return nil, fmt.Errorf("%w: secret-store must be %q or a vault:// URI", interfaces.ErrInvalidLocationURI, sealedSecretStore)
	}
	return storage.NewVaultSecretStoreFromLocation(loc, log)
}
