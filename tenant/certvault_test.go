package tenant

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ruteri/sefaz-config-gateway/cryptoutils"
	"github.com/ruteri/sefaz-config-gateway/interfaces"
	"github.com/ruteri/sefaz-config-gateway/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type vaultFixture struct {
	vault   *CertificateVault
	blobs   *storage.FileBackend
	secrets *storage.SealedSecretStore
	clock   time.Time
}

func newVaultFixture(t *testing.T, retainLast int) *vaultFixture {
	t.Helper()
	blobs, err := storage.NewFileBackend(t.TempDir(), discardLogger())
	require.NoError(t, err)
	secretBackend, err := storage.NewFileBackend(t.TempDir(), discardLogger())
	require.NoError(t, err)
	sealer, err := cryptoutils.NewSealer(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)

	f := &vaultFixture{
		blobs:   blobs,
		secrets: storage.NewSealedSecretStore(secretBackend, sealer, discardLogger()),
		clock:   testNow,
	}
	f.vault = NewCertificateVault(blobs, f.secrets, retainLast, nil, discardLogger())
	f.vault.now = func() time.Time {
		now := f.clock
		f.clock = f.clock.Add(time.Second)
		return now
	}
	return f
}

func readTestPFX(t *testing.T) []byte {
	t.Helper()
	pfx, err := os.ReadFile("testdata/cert.pfx")
	require.NoError(t, err)
	return pfx
}

func TestCertificateVault_StoreAndFetch(t *testing.T) {
	f := newVaultFixture(t, 0)
	ctx := context.Background()

	ref, err := f.vault.Store(ctx, "11222333000144", bytes.NewReader([]byte("blob")), "cert.pfx", "secret")
	require.NoError(t, err)
	assert.Equal(t, "11222333000144_1715342400000_cert.pfx", ref.StorageRef)
	assert.Equal(t, "cert.pfx", ref.OriginalName)
	assert.Equal(t, testNow, ref.UploadedAt)
	assert.NotEmpty(t, ref.PassphraseRef)
	assert.NotContains(t, ref.PassphraseRef, "secret")
	assert.Empty(t, ref.Subject, "garbage is accepted without certificate details")

	data, err := f.vault.Fetch(ctx, ref.StorageRef)
	require.NoError(t, err)
	assert.Equal(t, []byte("blob"), data)

	passphrase, err := f.vault.Passphrase(ctx, ref.PassphraseRef)
	require.NoError(t, err)
	assert.Equal(t, "secret", passphrase)
}

func TestCertificateVault_InspectsPKCS12(t *testing.T) {
	f := newVaultFixture(t, 0)

	ref, err := f.vault.Store(context.Background(), "11222333000144", bytes.NewReader(readTestPFX(t)), "empresa.pfx", "abc123")
	require.NoError(t, err)
	assert.Contains(t, ref.Subject, "11222333000144")
	assert.False(t, ref.NotAfter.IsZero())
}

func TestCertificateVault_EmptyPassphraseHasNoRef(t *testing.T) {
	f := newVaultFixture(t, 0)
	ctx := context.Background()

	ref, err := f.vault.Store(ctx, "11222333000144", strings.NewReader("blob"), "cert.pfx", "")
	require.NoError(t, err)
	assert.Empty(t, ref.PassphraseRef)

	passphrase, err := f.vault.Passphrase(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, passphrase)
}

func TestCertificateVault_Validation(t *testing.T) {
	f := newVaultFixture(t, 0)
	ctx := context.Background()

	_, err := f.vault.Store(ctx, "", strings.NewReader("blob"), "cert.pfx", "x")
	assert.ErrorIs(t, err, interfaces.ErrValidation)

	_, err = f.vault.Store(ctx, "11222333000144", nil, "cert.pfx", "x")
	assert.ErrorIs(t, err, interfaces.ErrValidation)

	_, err = f.vault.Store(ctx, "11222333000144", strings.NewReader(""), "cert.pfx", "x")
	assert.ErrorIs(t, err, interfaces.ErrValidation)

	_, err = f.vault.Fetch(ctx, "")
	assert.ErrorIs(t, err, interfaces.ErrValidation)
}

func TestCertificateVault_MissingBlobIsStorageError(t *testing.T) {
	f := newVaultFixture(t, 0)

	_, err := f.vault.Fetch(context.Background(), "11222333000144_1_gone.pfx")
	assert.ErrorIs(t, err, interfaces.ErrStorage)
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound)
}

func TestCertificateVault_SecondUploadKeepsPriorBlob(t *testing.T) {
	f := newVaultFixture(t, 0)
	ctx := context.Background()

	first, err := f.vault.Store(ctx, "11222333000144", strings.NewReader("one"), "cert.pfx", "abc123")
	require.NoError(t, err)
	second, err := f.vault.Store(ctx, "11222333000144", strings.NewReader("two"), "cert.pfx", "abc123")
	require.NoError(t, err)
	assert.NotEqual(t, first.StorageRef, second.StorageRef)

	data, err := f.vault.Fetch(ctx, first.StorageRef)
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), data)

	data, err = f.vault.Fetch(ctx, second.StorageRef)
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), data)
}

func TestCertificateVault_SameMillisecondUploadsDoNotCollide(t *testing.T) {
	f := newVaultFixture(t, 0)
	f.vault.now = func() time.Time { return testNow }
	ctx := context.Background()

	first, err := f.vault.Store(ctx, "11222333000144", strings.NewReader("one"), "cert.pfx", "")
	require.NoError(t, err)
	second, err := f.vault.Store(ctx, "11222333000144", strings.NewReader("two"), "cert.pfx", "")
	require.NoError(t, err)
	assert.NotEqual(t, first.StorageRef, second.StorageRef)
}

func TestCertificateVault_RetainLast(t *testing.T) {
	f := newVaultFixture(t, 2)
	ctx := context.Background()

	var refs []interfaces.CertificateRef
	for _, content := range []string{"one", "two", "three"} {
		ref, err := f.vault.Store(ctx, "11222333000144", strings.NewReader(content), "cert.pfx", "pw-"+content)
		require.NoError(t, err)
		refs = append(refs, ref)
	}
	other, err := f.vault.Store(ctx, "99888777000166", strings.NewReader("other"), "cert.pfx", "")
	require.NoError(t, err)

	// Store alone never prunes.
	_, err = f.vault.Fetch(ctx, refs[0].StorageRef)
	require.NoError(t, err)

	f.vault.Prune(ctx, "11222333000144", refs[2].StorageRef)

	_, err = f.vault.Fetch(ctx, refs[0].StorageRef)
	assert.ErrorIs(t, err, interfaces.ErrStorage)
	_, err = f.vault.Passphrase(ctx, refs[0].PassphraseRef)
	assert.ErrorIs(t, err, interfaces.ErrSecretNotFound)

	for _, ref := range append(refs[1:], other) {
		_, err := f.vault.Fetch(ctx, ref.StorageRef)
		assert.NoError(t, err)
	}
}

func TestCertificateVault_PruneKeepsReferencedUpload(t *testing.T) {
	f := newVaultFixture(t, 1)
	ctx := context.Background()

	first, err := f.vault.Store(ctx, "11222333000144", strings.NewReader("one"), "cert.pfx", "")
	require.NoError(t, err)
	_, err = f.vault.Store(ctx, "11222333000144", strings.NewReader("two"), "cert.pfx", "")
	require.NoError(t, err)

	f.vault.Prune(ctx, "11222333000144", first.StorageRef)

	_, err = f.vault.Fetch(ctx, first.StorageRef)
	assert.NoError(t, err)
}

func TestCertificateVault_PruneDisabled(t *testing.T) {
	f := newVaultFixture(t, 0)
	ctx := context.Background()

	first, err := f.vault.Store(ctx, "11222333000144", strings.NewReader("one"), "cert.pfx", "")
	require.NoError(t, err)
	second, err := f.vault.Store(ctx, "11222333000144", strings.NewReader("two"), "cert.pfx", "")
	require.NoError(t, err)

	f.vault.Prune(ctx, "11222333000144", second.StorageRef)

	_, err = f.vault.Fetch(ctx, first.StorageRef)
	assert.NoError(t, err)
}

func TestCertificateVault_SecretStoreFailureRemovesBlob(t *testing.T) {
	f := newVaultFixture(t, 0)
	f.vault.secrets = brokenSecrets{f.secrets}
	ctx := context.Background()

	_, err := f.vault.Store(ctx, "11222333000144", strings.NewReader("blob"), "cert.pfx", "abc123")
	assert.ErrorIs(t, err, interfaces.ErrStorage)

	keys, err := f.blobs.List(ctx, "11222333000144_")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

type brokenSecrets struct {
	interfaces.SecretStore
}

func (brokenSecrets) Put(ctx context.Context, key string, value []byte) (string, error) {
	return "", errors.New("secret store offline")
}

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"cert.pfx", "cert.pfx"},
		{"Certificado A1 2024.pfx", "Certificado_A1_2024.pfx"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\fiscal\cert.p12`, "cert.p12"},
		{".hidden.pfx", "hidden.pfx"},
		{"", "certificado"},
		{"çãõ", "certificado"},
		{strings.Repeat("a", 150) + ".pfx", strings.Repeat("a", 96) + ".pfx"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeFileName(tt.in))
		})
	}
}
