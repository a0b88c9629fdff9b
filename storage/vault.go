package storage

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"
	"github.com/ruteri/sefaz-config-gateway/interfaces"
)

const vaultRefPrefix = "vault:"

// VaultSecretStore keeps secrets in a HashiCorp Vault KV v2 mount.
type VaultSecretStore struct {
	client      *api.Client
	mountPath   string
	dataPath    string
	log         *slog.Logger
	locationURI string
}

// NewVaultSecretStore creates a Vault backed secret store.
//
// Parameters:
//   - address: Vault server address (e.g. https://vault.example.com:8200)
//   - mountPath: KV v2 mount path (e.g. "secret")
//   - dataPath: Path within the mount (e.g. "sefaz")
//   - token: Vault token; empty means VAULT_TOKEN from the environment
//   - log: Structured logger for operational insights
func NewVaultSecretStore(address, mountPath, dataPath, token string, log *slog.Logger) (*VaultSecretStore, error) {
	config := api.DefaultConfig()
	config.Address = address
	config.HttpClient = &http.Client{
		Timeout: 30 * time.Second,
	}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if token != "" {
		client.SetToken(token)
	}

	mountPath = strings.Trim(mountPath, "/")
	dataPath = strings.Trim(dataPath, "/")
	if mountPath == "" {
		return nil, fmt.Errorf("%w: missing Vault mount path", interfaces.ErrInvalidLocationURI)
	}

	return &VaultSecretStore{
		client:      client,
		mountPath:   mountPath,
		dataPath:    dataPath,
		log:         log,
		locationURI: fmt.Sprintf("vault://%s/%s/%s", address, mountPath, dataPath),
	}, nil
}

// NewVaultSecretStoreFromLocation creates a store from a vault:// location.
// URI format: vault://host:8200/<mount>/<path>?tls=true
func NewVaultSecretStoreFromLocation(loc interfaces.StorageBackendLocation, log *slog.Logger) (*VaultSecretStore, error) {
	if !loc.IsVault() {
		return nil, fmt.Errorf("%w: not a vault location: %s", interfaces.ErrInvalidLocationURI, loc.String())
	}

	scheme := "http"
	if loc.GetParamBool("tls") {
		scheme = "https"
	}

	mountPath, dataPath, _ := strings.Cut(strings.TrimPrefix(loc.Path, "/"), "/")
	return NewVaultSecretStore(fmt.Sprintf("%s://%s", scheme, loc.Host), mountPath, dataPath, "", log)
}

// Put writes value under key and returns its reference.
func (s *VaultSecretStore) Put(ctx context.Context, key string, value []byte) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}

	start := time.Now()
	path := s.path("data", key)

	secretData := map[string]interface{}{
		"data": map[string]interface{}{
			"content": string(value),
		},
	}

	if _, err := s.client.Logical().WriteWithContext(ctx, path, secretData); err != nil {
		s.log.Error("Failed to write to Vault",
			slog.String("path", path),
			"err", err)
		return "", fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	ref := s.Ref(key)
	s.log.Debug("Stored secret in Vault",
		slog.String("ref", ref),
		slog.Duration("duration", time.Since(start)))

	return ref, nil
}

// Get reads the secret behind ref.
func (s *VaultSecretStore) Get(ctx context.Context, ref string) ([]byte, error) {
	key, err := s.keyFor(ref)
	if err != nil {
		return nil, err
	}

	path := s.path("data", key)
	secret, err := s.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		s.log.Error("Failed to read from Vault",
			slog.String("path", path),
			"err", err)
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrSecretNotFound, ref)
	}

	// KV v2 nests the payload under "data"; deleted versions come back as nil.
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrSecretNotFound, ref)
	}

	content, ok := data["content"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: invalid content format in Vault data", interfaces.ErrStorage)
	}

	return []byte(content), nil
}

// Delete removes every version of the secret behind ref.
func (s *VaultSecretStore) Delete(ctx context.Context, ref string) error {
	key, err := s.keyFor(ref)
	if err != nil {
		return err
	}

	if _, err := s.client.Logical().DeleteWithContext(ctx, s.path("metadata", key)); err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	return nil
}

// Ref returns the reference of the secret stored under key.
func (s *VaultSecretStore) Ref(key string) string {
	return vaultRefPrefix + key
}

// Name returns a unique identifier for this secret store.
func (s *VaultSecretStore) Name() string {
	return fmt.Sprintf("vault-%s-%s", s.mountPath, s.dataPath)
}

// LocationURI returns the URI that identifies this secret store.
func (s *VaultSecretStore) LocationURI() string {
	return s.locationURI
}

// path builds a KV v2 API path; kind is "data" or "metadata".
func (s *VaultSecretStore) path(kind, key string) string {
	if s.dataPath == "" {
		return fmt.Sprintf("%s/%s/%s", s.mountPath, kind, key)
	}
	return fmt.Sprintf("%s/%s/%s/%s", s.mountPath, kind, s.dataPath, key)
}

func (s *VaultSecretStore) keyFor(ref string) (string, error) {
	key, ok := strings.CutPrefix(ref, vaultRefPrefix)
	if !ok {
		return "", fmt.Errorf("%w: not a vault secret reference", interfaces.ErrSecretNotFound)
	}
	if err := validateKey(key); err != nil {
		return "", err
	}
	return key, nil
}
