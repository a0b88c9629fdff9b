package confighandler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ruteri/sefaz-config-gateway/api"
	"github.com/ruteri/sefaz-config-gateway/interfaces"
)

const defaultClientTimeout = 30 * time.Second

// Client talks to the configuration routes of a running gateway.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a client for the gateway at baseURL (e.g. "http://localhost:8080").
// A nil httpClient uses a client with a 30s timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultClientTimeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// APIError is returned for non-2xx answers of the configuration routes.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway returned %d: %s", e.StatusCode, e.Message)
}

// GetConfig fetches the configuration of cnpj.
func (c *Client) GetConfig(ctx context.Context, cnpj string) (*interfaces.TenantConfig, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/api/config/%s", c.baseURL, url.PathEscape(cnpj)), nil)
	if err != nil {
		return nil, fmt.Errorf("could not initialize request: %w", err)
	}

	var cfg interfaces.TenantConfig
	if err := c.do(req, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetEnvironment switches cnpj to "production" or "homolog".
func (c *Client) SetEnvironment(ctx context.Context, cnpj, ambiente string) (*api.ConfigResponse, error) {
	body, err := json.Marshal(api.SetEnvironmentRequest{CNPJ: cnpj, Ambiente: ambiente})
	if err != nil {
		return nil, fmt.Errorf("could not encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/config/ambiente", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("could not initialize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var resp api.ConfigResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UploadCertificate sends a certificate file for cnpj. An empty senha is omitted.
func (c *Client) UploadCertificate(ctx context.Context, cnpj, fileName string, certificate io.Reader, senha string) (*api.ConfigResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if err := mw.WriteField("cnpj", cnpj); err != nil {
		return nil, fmt.Errorf("could not encode form: %w", err)
	}
	if senha != "" {
		if err := mw.WriteField("senha", senha); err != nil {
			return nil, fmt.Errorf("could not encode form: %w", err)
		}
	}
	part, err := mw.CreateFormFile("certificado", fileName)
	if err != nil {
		return nil, fmt.Errorf("could not encode form: %w", err)
	}
	if _, err := io.Copy(part, certificate); err != nil {
		return nil, fmt.Errorf("could not read certificate: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("could not encode form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/config/upload-certificado", &buf)
	if err != nil {
		return nil, fmt.Errorf("could not initialize request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp api.ConfigResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestStatus checks the status service of cnpj. The decoded response is
// returned for failed checks too, together with an *APIError.
func (c *Client) TestStatus(ctx context.Context, cnpj string) (*api.StatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/api/config/testar/%s", c.baseURL, url.PathEscape(cnpj)), nil)
	if err != nil {
		return nil, fmt.Errorf("could not initialize request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not request status check: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read status response: %w", err)
	}

	var status api.StatusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("could not parse status response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := status.Detail
		if msg == "" {
			msg = status.Reason
		}
		return &status, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	return &status, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("could not request %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("could not read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr api.ErrorResponse
		if json.Unmarshal(body, &apiErr) != nil || apiErr.Error == "" {
			apiErr.Error = strings.TrimSpace(string(body))
		}
		return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Error}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("could not parse response: %w", err)
	}
	return nil
}
