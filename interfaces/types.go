package interfaces

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"
)

// maxTenantIDLength bounds tenant ids so they stay usable as file names.
const maxTenantIDLength = 64

// TenantID is the tax id (CNPJ) of a tenant company. It is opaque: no
// checksum validation is done, only the checks needed to use it as a storage key.
type TenantID string

// NewTenantID validates raw and returns it as a TenantID.
func NewTenantID(raw string) (TenantID, error) {
	id := TenantID(raw)
	if err := id.Validate(); err != nil {
		return "", err
	}
	return id, nil
}

// Validate reports ErrValidation if the id is empty, too long, or contains
// characters outside [0-9A-Za-z.-].
func (id TenantID) Validate() error {
	if id == "" {
		return fmt.Errorf("%w: tenant id (cnpj) is required", ErrValidation)
	}
	if len(id) > maxTenantIDLength {
		return fmt.Errorf("%w: tenant id longer than %d characters", ErrValidation, maxTenantIDLength)
	}
	for _, r := range id {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '.', r == '-':
		default:
			return fmt.Errorf("%w: tenant id contains invalid character %q", ErrValidation, r)
		}
	}
	if id == "." || id == ".." {
		return fmt.Errorf("%w: invalid tenant id %q", ErrValidation, string(id))
	}
	return nil
}

// String returns the raw id.
func (id TenantID) String() string {
	return string(id)
}

// Environment selects which tax authority endpoint a tenant talks to.
// The numeric value is the tpAmb code of the status envelope.
type Environment int

const (
	// EnvironmentProduction is the live endpoint (tpAmb=1).
	EnvironmentProduction Environment = 1
	// EnvironmentHomolog is the test endpoint (tpAmb=2).
	EnvironmentHomolog Environment = 2
)

const (
	environmentProductionName = "production"
	environmentHomologName    = "homolog"
)

// ParseEnvironment accepts exactly "production" or "homolog".
func ParseEnvironment(s string) (Environment, error) {
	switch s {
	case environmentProductionName:
		return EnvironmentProduction, nil
	case environmentHomologName:
		return EnvironmentHomolog, nil
	default:
		return 0, fmt.Errorf("%w: invalid environment %q, expected %q or %q",
			ErrValidation, s, environmentProductionName, environmentHomologName)
	}
}

// Valid reports whether e is one of the enumerated environments.
func (e Environment) Valid() bool {
	return e == EnvironmentProduction || e == EnvironmentHomolog
}

// String returns the wire name of the environment.
func (e Environment) String() string {
	switch e {
	case EnvironmentProduction:
		return environmentProductionName
	case EnvironmentHomolog:
		return environmentHomologName
	default:
		return fmt.Sprintf("environment(%d)", int(e))
	}
}

// TpAmb returns the environment-type code of the status envelope.
func (e Environment) TpAmb() (int, error) {
	switch e {
	case EnvironmentProduction, EnvironmentHomolog:
		return int(e), nil
	default:
		return 0, fmt.Errorf("%w: unknown environment %d", ErrProtocol, int(e))
	}
}

// MarshalJSON encodes the environment as its name.
func (e Environment) MarshalJSON() ([]byte, error) {
	if !e.Valid() {
		return nil, fmt.Errorf("%w: cannot encode unknown environment %d", ErrValidation, int(e))
	}
	return json.Marshal(e.String())
}

// UnmarshalJSON decodes an environment name, rejecting anything unknown.
func (e *Environment) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: environment must be a string", ErrValidation)
	}
	parsed, err := ParseEnvironment(s)
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

// EndpointURLs maps each environment to its status service URL.
type EndpointURLs struct {
	Production string `json:"production"`
	Homolog    string `json:"homolog"`
}

// Endpoints is fixed at tenant creation; API calls never mutate it.
type Endpoints struct {
	URLs EndpointURLs `json:"urls"`
}

// For returns the URL of env. Unknown environments and unusable URLs are
// protocol errors since ConfigStore never persists them.
func (e Endpoints) For(env Environment) (string, error) {
	var raw string
	switch env {
	case EnvironmentProduction:
		raw = e.URLs.Production
	case EnvironmentHomolog:
		raw = e.URLs.Homolog
	default:
		return "", fmt.Errorf("%w: no endpoint for unknown environment %d", ErrProtocol, int(env))
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return "", fmt.Errorf("%w: invalid %s endpoint %q", ErrProtocol, env, raw)
	}
	return raw, nil
}

// CertificateRef points at an uploaded certificate blob and at the sealed
// passphrase. Neither field holds secret material.
type CertificateRef struct {
	StorageRef    string    `json:"path,omitempty"`
	PassphraseRef string    `json:"senha_ref,omitempty"`
	OriginalName  string    `json:"original_name,omitempty"`
	UploadedAt    time.Time `json:"uploaded_at,omitzero"`

	// Filled when the blob decodes as PKCS#12 with the given passphrase.
	Subject  string    `json:"subject,omitempty"`
	NotAfter time.Time `json:"not_after,omitzero"`
}

// IsEmpty reports whether no certificate was uploaded yet.
func (c CertificateRef) IsEmpty() bool {
	return c.StorageRef == ""
}

// TenantConfig is the durable configuration of one tenant.
type TenantConfig struct {
	TenantID    TenantID       `json:"cnpj"`
	Environment Environment    `json:"ambiente"`
	Certificate CertificateRef `json:"certificado"`
	Endpoints   Endpoints      `json:"sefaz"`
	CreatedAt   time.Time      `json:"created_at,omitzero"`
	UpdatedAt   time.Time      `json:"updated_at,omitzero"`
}

// NewDefaultTenantConfig returns the record created on first access.
func NewDefaultTenantConfig(id TenantID, endpoints Endpoints, now time.Time) *TenantConfig {
	return &TenantConfig{
		TenantID:    id,
		Environment: EnvironmentProduction,
		Endpoints:   endpoints,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Validate checks the invariants every persisted record must satisfy.
func (c *TenantConfig) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: nil tenant config", ErrValidation)
	}
	if err := c.TenantID.Validate(); err != nil {
		return err
	}
	if !c.Environment.Valid() {
		return fmt.Errorf("%w: invalid environment %d", ErrValidation, int(c.Environment))
	}
	return nil
}

// Clone returns a copy safe to mutate.
func (c *TenantConfig) Clone() *TenantConfig {
	cp := *c
	return &cp
}

// Status check outcomes carried in StatusResult.Reason.
const (
	StatusReasonUnreachable   = "unreachable"
	StatusReasonEmptyResponse = "empty_response"
)

// StatusResult is the outcome of one status check. OK means the service
// answered; the content of Raw is left for the caller to interpret.
type StatusResult struct {
	OK          bool          `json:"ok"`
	Reason      string        `json:"reason,omitempty"`
	Raw         string        `json:"raw,omitempty"`
	HTTPStatus  int           `json:"http_status,omitempty"`
	Environment Environment   `json:"ambiente"`
	Endpoint    string        `json:"endpoint"`
	Duration    time.Duration `json:"duration"`

	// Truncated is set when Raw holds only the head of a longer body.
	Truncated bool `json:"truncated,omitempty"`

	// Err wraps ErrTimeout or ErrUnreachable when OK is false.
	Err error `json:"-"`
}
