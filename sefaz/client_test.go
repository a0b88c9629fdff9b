package sefaz

import (
	"context"
	"crypto/tls"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/ruteri/sefaz-config-gateway/cryptoutils"
	"github.com/ruteri/sefaz-config-gateway/interfaces"
	"github.com/ruteri/sefaz-config-gateway/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func tenantFor(server *httptest.Server, env interfaces.Environment) *interfaces.TenantConfig {
	cfg := interfaces.NewDefaultTenantConfig("11222333000144", interfaces.Endpoints{
		URLs: interfaces.EndpointURLs{
			Production: server.URL + "/production/NFeStatusServico4",
			Homolog:    server.URL + "/homolog/NFeStatusServico4",
		},
	}, time.Now())
	cfg.Environment = env
	return cfg
}

func newTestClient(t *testing.T, server *httptest.Server, opts Options) *StatusClient {
	t.Helper()
	if opts.HTTPClient == nil {
		opts.HTTPClient = server.Client()
	}
	opts.Log = discardLogger()
	client, err := NewStatusClient(opts)
	require.NoError(t, err)
	return client
}

type capturedRequest struct {
	path        string
	contentType string
	body        string
}

func TestStatusClient_Check(t *testing.T) {
	requests := make(chan capturedRequest, 2)
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		requests <- capturedRequest{path: r.URL.Path, contentType: r.Header.Get("Content-Type"), body: string(body)}
		_, _ = w.Write([]byte("<retConsStatServ><cStat>107</cStat></retConsStatServ>"))
	}))
	defer server.Close()

	client := newTestClient(t, server, Options{})

	tests := []struct {
		env   interfaces.Environment
		path  string
		tpAmb string
	}{
		{interfaces.EnvironmentProduction, "/production/NFeStatusServico4", "<tpAmb>1</tpAmb>"},
		{interfaces.EnvironmentHomolog, "/homolog/NFeStatusServico4", "<tpAmb>2</tpAmb>"},
	}

	for _, tt := range tests {
		t.Run(tt.env.String(), func(t *testing.T) {
			result, err := client.Check(context.Background(), tenantFor(server, tt.env))
			require.NoError(t, err)
			assert.True(t, result.OK)
			assert.Equal(t, http.StatusOK, result.HTTPStatus)
			assert.Equal(t, "<retConsStatServ><cStat>107</cStat></retConsStatServ>", result.Raw)
			assert.Equal(t, tt.env, result.Environment)
			assert.NoError(t, result.Err)

			req := <-requests
			assert.Equal(t, tt.path, req.path)
			assert.Equal(t, "application/soap+xml; charset=utf-8", req.contentType)
			assert.Contains(t, req.body, tt.tpAmb)
			assert.Contains(t, req.body, "<cUF>31</cUF>")
			assert.Contains(t, req.body, "<xServ>STATUS</xServ>")
		})
	}
}

func TestStatusClient_NegativeAnswerIsStillOK(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("<faultstring>not authorized</faultstring>"))
	}))
	defer server.Close()

	result, err := newTestClient(t, server, Options{}).Check(context.Background(), tenantFor(server, interfaces.EnvironmentProduction))
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, http.StatusForbidden, result.HTTPStatus)
	assert.Contains(t, result.Raw, "not authorized")
}

func TestStatusClient_EmptyResponse(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	result, err := newTestClient(t, server, Options{}).Check(context.Background(), tenantFor(server, interfaces.EnvironmentHomolog))
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Equal(t, interfaces.StatusReasonEmptyResponse, result.Reason)
	assert.Equal(t, http.StatusOK, result.HTTPStatus)
}

func TestStatusClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := newTestClient(t, server, Options{Timeout: 100 * time.Millisecond})

	start := time.Now()
	result, err := client.Check(context.Background(), tenantFor(server, interfaces.EnvironmentProduction))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.False(t, result.OK)
	assert.Equal(t, interfaces.StatusReasonUnreachable, result.Reason)
	assert.ErrorIs(t, result.Err, interfaces.ErrTimeout)
}

func TestStatusClient_Unreachable(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	cfg := interfaces.NewDefaultTenantConfig("11222333000144", interfaces.Endpoints{
		URLs: interfaces.EndpointURLs{
			Production: "http://" + addr + "/NFeStatusServico4",
			Homolog:    "http://" + addr + "/NFeStatusServico4",
		},
	}, time.Now())

	client, err := NewStatusClient(Options{Log: discardLogger()})
	require.NoError(t, err)

	result, err := client.Check(context.Background(), cfg)
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Equal(t, interfaces.StatusReasonUnreachable, result.Reason)
	assert.ErrorIs(t, result.Err, interfaces.ErrUnreachable)
}

func TestStatusClient_BodyIsCapped(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", MaxResponseBytes+1024)))
	}))
	defer server.Close()

	result, err := newTestClient(t, server, Options{}).Check(context.Background(), tenantFor(server, interfaces.EnvironmentProduction))
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Len(t, result.Raw, MaxResponseBytes)
	assert.True(t, result.Truncated)
}

func TestStatusClient_BodyAtLimitIsNotTruncated(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", MaxResponseBytes)))
	}))
	defer server.Close()

	result, err := newTestClient(t, server, Options{}).Check(context.Background(), tenantFor(server, interfaces.EnvironmentProduction))
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Len(t, result.Raw, MaxResponseBytes)
	assert.False(t, result.Truncated)
}

func TestStatusClient_WhitespaceBodyIsAnAnswer(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("\r\n  "))
	}))
	defer server.Close()

	result, err := newTestClient(t, server, Options{}).Check(context.Background(), tenantFor(server, interfaces.EnvironmentHomolog))
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Empty(t, result.Reason)
	assert.Equal(t, "\r\n  ", result.Raw)
}

func TestStatusClient_ProtocolErrors(t *testing.T) {
	client, err := NewStatusClient(Options{Log: discardLogger()})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = client.Check(ctx, nil)
	assert.ErrorIs(t, err, interfaces.ErrProtocol)

	cfg := interfaces.NewDefaultTenantConfig("11222333000144", interfaces.Endpoints{
		URLs: interfaces.EndpointURLs{Production: "ftp://example.com", Homolog: "https://example.com"},
	}, time.Now())
	_, err = client.Check(ctx, cfg)
	assert.ErrorIs(t, err, interfaces.ErrProtocol)

	cfg.Environment = interfaces.Environment(9)
	_, err = client.Check(ctx, cfg)
	assert.ErrorIs(t, err, interfaces.ErrProtocol)

	_, err = NewStatusClient(Options{CUF: "MG"})
	assert.ErrorIs(t, err, interfaces.ErrProtocol)
}

func TestStatusClient_MutualTLS(t *testing.T) {
	pfx, err := os.ReadFile("testdata/cert.pfx")
	require.NoError(t, err)
	cert, err := cryptoutils.PKCS12ToTLS(pfx, "abc123")
	require.NoError(t, err)

	var presented atomic.Int32
	server := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		presented.Store(int32(len(r.TLS.PeerCertificates)))
		_, _ = w.Write([]byte("<cStat>107</cStat>"))
	}))
	server.TLS = &tls.Config{ClientAuth: tls.RequireAnyClientCert}
	server.StartTLS()
	defer server.Close()

	var loads atomic.Int32
	client := newTestClient(t, server, Options{
		ClientCertificates: func(ctx context.Context, cfg *interfaces.TenantConfig) (*tls.Certificate, error) {
			loads.Add(1)
			return &cert, nil
		},
	})

	cfg := tenantFor(server, interfaces.EnvironmentProduction)
	cfg.Certificate = interfaces.CertificateRef{StorageRef: "11222333000144_1_cert.pfx"}

	for i := 0; i < 2; i++ {
		result, err := client.Check(context.Background(), cfg)
		require.NoError(t, err)
		assert.True(t, result.OK)
	}
	assert.Equal(t, int32(1), presented.Load())
	assert.Equal(t, int32(1), loads.Load(), "clients are cached per certificate")
}

func TestStatusClient_CachedClientFollowsCertificate(t *testing.T) {
	pfx, err := os.ReadFile("testdata/cert.pfx")
	require.NoError(t, err)
	cert, err := cryptoutils.PKCS12ToTLS(pfx, "abc123")
	require.NoError(t, err)

	server := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<cStat>107</cStat>"))
	}))
	server.TLS = &tls.Config{ClientAuth: tls.RequestClientCert}
	server.StartTLS()
	defer server.Close()

	var loads atomic.Int32
	client := newTestClient(t, server, Options{
		ClientCertificates: func(ctx context.Context, cfg *interfaces.TenantConfig) (*tls.Certificate, error) {
			loads.Add(1)
			if cfg.Certificate.IsEmpty() {
				return nil, nil
			}
			return &cert, nil
		},
	})
	ctx := context.Background()
	cfg := tenantFor(server, interfaces.EnvironmentProduction)

	for _, ref := range []string{"11222333000144_1_a.pfx", "11222333000144_2_b.pfx", "11222333000144_3_c.pfx"} {
		cfg.Certificate = interfaces.CertificateRef{StorageRef: ref}
		result, err := client.Check(ctx, cfg)
		require.NoError(t, err)
		require.True(t, result.OK)
		assert.Len(t, client.tlsClients, 1)
		assert.Equal(t, ref, client.tlsClients[cfg.TenantID].ref)
	}
	assert.Equal(t, int32(3), loads.Load())

	other := tenantFor(server, interfaces.EnvironmentProduction)
	other.TenantID = "99888777000166"
	other.Certificate = interfaces.CertificateRef{StorageRef: "99888777000166_1_a.pfx"}
	_, err = client.Check(ctx, other)
	require.NoError(t, err)
	assert.Len(t, client.tlsClients, 2)

	cfg.Certificate = interfaces.CertificateRef{}
	_, err = client.Check(ctx, cfg)
	require.NoError(t, err)
	assert.Len(t, client.tlsClients, 1, "tenants without certificate hold no cached client")
}

func TestStatusClient_SlowCertificateLoadIsBounded(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	client := newTestClient(t, server, Options{
		Timeout: 100 * time.Millisecond,
		ClientCertificates: func(ctx context.Context, cfg *interfaces.TenantConfig) (*tls.Certificate, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(10 * time.Second):
				return nil, nil
			}
		},
	})

	start := time.Now()
	_, err := client.Check(context.Background(), tenantFor(server, interfaces.EnvironmentProduction))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestStatusClient_CertificateLoadFailure(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	m := metrics.NewMetrics("test", prometheus.NewRegistry())
	client := newTestClient(t, server, Options{
		Metrics: m,
		ClientCertificates: func(ctx context.Context, cfg *interfaces.TenantConfig) (*tls.Certificate, error) {
			return nil, interfaces.ErrStorage
		},
	})

	result, err := client.Check(context.Background(), tenantFor(server, interfaces.EnvironmentProduction))
	assert.ErrorIs(t, err, interfaces.ErrStorage)
	assert.Nil(t, result)

	var out dto.Metric
	require.NoError(t, m.StatusChecks.WithLabelValues("production", metrics.OutcomeError).Write(&out))
	assert.Equal(t, 1.0, out.GetCounter().GetValue())
}

// stubVault serves one certificate for NewVaultCertificateLoader.
type stubVault struct {
	pfx        []byte
	passphrase string
}

func (s stubVault) Store(ctx context.Context, id interfaces.TenantID, blob io.Reader, originalName, passphrase string) (interfaces.CertificateRef, error) {
	return interfaces.CertificateRef{}, nil
}

func (s stubVault) Fetch(ctx context.Context, storageRef string) ([]byte, error) {
	return s.pfx, nil
}

func (s stubVault) Passphrase(ctx context.Context, passphraseRef string) (string, error) {
	return s.passphrase, nil
}

func TestVaultCertificateLoader(t *testing.T) {
	pfx, err := os.ReadFile("testdata/cert.pfx")
	require.NoError(t, err)
	ctx := context.Background()

	cfg := interfaces.NewDefaultTenantConfig("11222333000144", interfaces.Endpoints{}, time.Now())

	loader := NewVaultCertificateLoader(stubVault{pfx: pfx, passphrase: "abc123"})
	cert, err := loader(ctx, cfg)
	require.NoError(t, err)
	assert.Nil(t, cert, "tenants without certificate connect without one")

	cfg.Certificate = interfaces.CertificateRef{StorageRef: "11222333000144_1_cert.pfx", PassphraseRef: "sealed:x"}
	cert, err = loader(ctx, cfg)
	require.NoError(t, err)
	require.NotNil(t, cert)

	_, err = NewVaultCertificateLoader(stubVault{pfx: pfx, passphrase: "wrong"})(ctx, cfg)
	assert.ErrorIs(t, err, interfaces.ErrStorage)
}
