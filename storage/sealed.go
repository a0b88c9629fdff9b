package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ruteri/sefaz-config-gateway/cryptoutils"
	"github.com/ruteri/sefaz-config-gateway/interfaces"
)

const (
	sealedRefPrefix    = "sealed:"
	sealedSecretPrefix = "secrets/"
)

// SealedSecretStore encrypts secrets with a Sealer and keeps the ciphertext
// in a blob backend. The secret key is bound to the ciphertext as associated
// data, so a sealed value copied under another key fails to open.
type SealedSecretStore struct {
	backend interfaces.BlobBackend
	sealer  *cryptoutils.Sealer
	log     *slog.Logger
}

// NewSealedSecretStore creates a secret store on top of backend.
func NewSealedSecretStore(backend interfaces.BlobBackend, sealer *cryptoutils.Sealer, log *slog.Logger) *SealedSecretStore {
	return &SealedSecretStore{
		backend: backend,
		sealer:  sealer,
		log:     log,
	}
}

// Put seals value and stores it under key. The returned reference is the
// only handle needed to read it back.
func (s *SealedSecretStore) Put(ctx context.Context, key string, value []byte) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}

	sealed, err := s.sealer.Seal(value, []byte(key))
	if err != nil {
		return "", fmt.Errorf("%w: failed to seal secret: %v", interfaces.ErrStorage, err)
	}

	if err := s.backend.Store(ctx, sealedSecretPrefix+key, sealed); err != nil {
		return "", err
	}

	ref := s.Ref(key)
	s.log.Debug("Stored sealed secret", slog.String("ref", ref))
	return ref, nil
}

// Get opens the secret behind ref.
func (s *SealedSecretStore) Get(ctx context.Context, ref string) ([]byte, error) {
	key, err := s.keyFor(ref)
	if err != nil {
		return nil, err
	}

	sealed, err := s.backend.Fetch(ctx, sealedSecretPrefix+key)
	if errors.Is(err, interfaces.ErrContentNotFound) {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrSecretNotFound, ref)
	}
	if err != nil {
		return nil, err
	}

	value, err := s.sealer.Open(sealed, []byte(key))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open secret %s: %v", interfaces.ErrStorage, ref, err)
	}
	return value, nil
}

// Delete removes the secret behind ref.
func (s *SealedSecretStore) Delete(ctx context.Context, ref string) error {
	key, err := s.keyFor(ref)
	if err != nil {
		return err
	}
	return s.backend.Delete(ctx, sealedSecretPrefix+key)
}

// Ref returns the reference of the secret stored under key.
func (s *SealedSecretStore) Ref(key string) string {
	return sealedRefPrefix + key
}

// Name returns an identifier for logging.
func (s *SealedSecretStore) Name() string {
	return "sealed-" + s.backend.Name()
}

func (s *SealedSecretStore) keyFor(ref string) (string, error) {
	key, ok := strings.CutPrefix(ref, sealedRefPrefix)
	if !ok {
		return "", fmt.Errorf("%w: not a sealed secret reference", interfaces.ErrSecretNotFound)
	}
	if err := validateKey(key); err != nil {
		return "", err
	}
	return key, nil
}
