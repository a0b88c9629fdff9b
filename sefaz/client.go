package sefaz

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ruteri/sefaz-config-gateway/cryptoutils"
	"github.com/ruteri/sefaz-config-gateway/interfaces"
	"github.com/ruteri/sefaz-config-gateway/metrics"
)

const (
	// DefaultTimeout bounds a whole check, response body included.
	DefaultTimeout = 5 * time.Second

	// MaxResponseBytes caps how much of a response body is kept.
	MaxResponseBytes = 1 << 20

	contentType = "application/soap+xml; charset=utf-8"
)

// ClientCertificateLoader returns the TLS client certificate to present for
// a tenant, or nil to connect without one.
type ClientCertificateLoader func(ctx context.Context, cfg *interfaces.TenantConfig) (*tls.Certificate, error)

// Options configures a StatusClient. Zero values select the defaults.
type Options struct {
	Timeout    time.Duration
	CUF        string
	PrettyXML  bool
	HTTPClient *http.Client

	// ClientCertificates enables mutual TLS towards the status service.
	ClientCertificates ClientCertificateLoader

	Metrics *metrics.Metrics
	Log     *slog.Logger
}

// StatusClient implements interfaces.StatusChecker.
type StatusClient struct {
	timeout    time.Duration
	cuf        string
	pretty     bool
	httpClient *http.Client
	certs      ClientCertificateLoader
	metrics    *metrics.Metrics
	log        *slog.Logger

	mu         sync.Mutex
	tlsClients map[interfaces.TenantID]tlsClient
}

// tlsClient is the client presenting the certificate stored at ref.
type tlsClient struct {
	ref    string
	client *http.Client
}

// NewStatusClient creates a status client. It returns ErrProtocol for a malformed state code.
func NewStatusClient(opts Options) (*StatusClient, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.CUF == "" {
		opts.CUF = DefaultCUF
	}
	if !validCUF(opts.CUF) {
		return nil, fmt.Errorf("%w: invalid state code %q", interfaces.ErrProtocol, opts.CUF)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()}
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}

	return &StatusClient{
		timeout:    opts.Timeout,
		cuf:        opts.CUF,
		pretty:     opts.PrettyXML,
		httpClient: opts.HTTPClient,
		certs:      opts.ClientCertificates,
		metrics:    opts.Metrics,
		log:        opts.Log,
		tlsClients: make(map[interfaces.TenantID]tlsClient),
	}, nil
}

// Check posts a status request to the endpoint of the tenant's environment.
// Transport failures and empty answers are reported in the result; the error
// is reserved for invariant violations and client certificate failures.
// The timeout covers loading the client certificate too.
func (c *StatusClient) Check(ctx context.Context, cfg *interfaces.TenantConfig) (*interfaces.StatusResult, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil tenant config", interfaces.ErrProtocol)
	}

	endpoint, err := cfg.Endpoints.For(cfg.Environment)
	if err != nil {
		return nil, err
	}

	body, err := BuildStatusEnvelope(cfg.Environment, c.cuf, c.pretty)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	loadStart := time.Now()
	client, err := c.clientFor(ctx, cfg)
	if err != nil {
		c.metrics.RecordStatusCheck(cfg.Environment.String(), metrics.OutcomeError, time.Since(loadStart))
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to build status request: %v", interfaces.ErrProtocol, err)
	}
	req.Header.Set("Content-Type", contentType)

	result := &interfaces.StatusResult{
		Environment: cfg.Environment,
		Endpoint:    endpoint,
	}

	start := time.Now()
	raw, status, truncated, err := c.do(client, req)
	result.Duration = time.Since(start)

	log := c.log.With(
		slog.String("tenantId", cfg.TenantID.String()),
		slog.String("environment", cfg.Environment.String()),
		slog.String("endpoint", endpoint),
		slog.Duration("duration", result.Duration))

	switch {
	case err != nil:
		result.Reason = interfaces.StatusReasonUnreachable
		result.Err = classifyTransportError(err)
		log.Warn("Status service unreachable", "err", result.Err)
	case len(raw) == 0:
		result.HTTPStatus = status
		result.Reason = interfaces.StatusReasonEmptyResponse
		log.Warn("Status service returned an empty response", slog.Int("httpStatus", status))
	default:
		result.OK = true
		result.HTTPStatus = status
		result.Raw = string(raw)
		result.Truncated = truncated
		if truncated {
			log.Warn("Status response truncated", slog.Int("limit", MaxResponseBytes))
		}
		log.Info("Status service answered", slog.Int("httpStatus", status), slog.Int("size", len(raw)))
	}

	c.metrics.RecordStatusCheck(cfg.Environment.String(), outcome(result), result.Duration)
	return result, nil
}

// do returns at most MaxResponseBytes of the body and whether more was sent.
func (c *StatusClient) do(client *http.Client, req *http.Request) ([]byte, int, bool, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, false, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes+1))
	if err != nil {
		return nil, resp.StatusCode, false, err
	}
	if len(raw) > MaxResponseBytes {
		return raw[:MaxResponseBytes], resp.StatusCode, true, nil
	}
	return raw, resp.StatusCode, false, nil
}

// clientFor returns the HTTP client presenting the tenant's certificate when
// mutual TLS is enabled. One client is cached per tenant; it is replaced
// when the tenant's certificate reference changes.
func (c *StatusClient) clientFor(ctx context.Context, cfg *interfaces.TenantConfig) (*http.Client, error) {
	if c.certs == nil {
		return c.httpClient, nil
	}

	ref := cfg.Certificate.StorageRef
	c.mu.Lock()
	cached, ok := c.tlsClients[cfg.TenantID]
	c.mu.Unlock()
	if ok && cached.ref == ref && ref != "" {
		return cached.client, nil
	}

	cert, err := c.certs(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cert == nil {
		c.evict(cfg.TenantID, ref)
		return c.httpClient, nil
	}

	var transport *http.Transport
	if base, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport = base.Clone()
	} else {
		transport = http.DefaultTransport.(*http.Transport).Clone()
	}
	if transport.TLSClientConfig == nil {
		transport.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	transport.TLSClientConfig.Certificates = []tls.Certificate{*cert}

	client := &http.Client{
		Transport:     transport,
		CheckRedirect: c.httpClient.CheckRedirect,
		Jar:           c.httpClient.Jar,
	}

	if ref == "" {
		return client, nil
	}

	c.mu.Lock()
	prev, replaced := c.tlsClients[cfg.TenantID]
	c.tlsClients[cfg.TenantID] = tlsClient{ref: ref, client: client}
	c.mu.Unlock()
	if replaced && prev.ref != ref {
		prev.client.CloseIdleConnections()
	}
	return client, nil
}

// evict drops the cached client of a tenant whose certificate is no longer ref.
func (c *StatusClient) evict(id interfaces.TenantID, ref string) {
	c.mu.Lock()
	prev, ok := c.tlsClients[id]
	if ok && prev.ref != ref {
		delete(c.tlsClients, id)
	}
	c.mu.Unlock()
	if ok && prev.ref != ref {
		prev.client.CloseIdleConnections()
	}
}

// NewVaultCertificateLoader presents the tenant's uploaded PKCS#12
// certificate. Tenants without a certificate connect without one.
func NewVaultCertificateLoader(vault interfaces.CertificateVault) ClientCertificateLoader {
	return func(ctx context.Context, cfg *interfaces.TenantConfig) (*tls.Certificate, error) {
		if cfg.Certificate.IsEmpty() {
			return nil, nil
		}

		pfx, err := vault.Fetch(ctx, cfg.Certificate.StorageRef)
		if err != nil {
			return nil, err
		}
		passphrase, err := vault.Passphrase(ctx, cfg.Certificate.PassphraseRef)
		if err != nil {
			return nil, err
		}

		cert, err := cryptoutils.PKCS12ToTLS(pfx, passphrase)
		if err != nil {
			return nil, fmt.Errorf("%w: certificate %s is not a usable PKCS#12 file: %v",
				interfaces.ErrStorage, cfg.Certificate.StorageRef, err)
		}
		return &cert, nil
	}
}

func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", interfaces.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", interfaces.ErrUnreachable, err)
}

func outcome(result *interfaces.StatusResult) string {
	switch {
	case result.OK:
		return metrics.OutcomeOK
	case errors.Is(result.Err, interfaces.ErrTimeout):
		return metrics.OutcomeTimeout
	case result.Reason == interfaces.StatusReasonEmptyResponse:
		return metrics.OutcomeEmpty
	default:
		return metrics.OutcomeUnreachable
	}
}
