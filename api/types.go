package api

import "github.com/ruteri/sefaz-config-gateway/interfaces"

// ConfigResponse is returned by the routes mutating a tenant configuration.
type ConfigResponse struct {
	Message string                   `json:"message"`
	Config  *interfaces.TenantConfig `json:"config"`
}

// SetEnvironmentRequest is the body of POST /api/config/ambiente.
type SetEnvironmentRequest struct {
	CNPJ     string `json:"cnpj"`
	Ambiente string `json:"ambiente"`
}

// Status check response states.
const (
	StatusOK    = "ok"
	StatusError = "erro"
)

// Failure reasons of StatusResponse besides the check reasons of
// interfaces.StatusResult.
const (
	ReasonValidation  = "validation_error"
	ReasonStorage     = "storage_error"
	ReasonProtocol    = "protocol_error"
	ReasonRateLimited = "rate_limited"
)

// StatusResponse is returned by GET /api/config/testar/{cnpj}.
type StatusResponse struct {
	// Status is "ok" when the status service answered and "erro" otherwise.
	Status string `json:"status"`

	// Resposta is the raw body returned by the status service.
	Resposta   string                 `json:"resposta,omitempty"`
	HTTPStatus int                    `json:"http_status,omitempty"`
	Ambiente   interfaces.Environment `json:"ambiente,omitempty"`
	Endpoint   string                 `json:"endpoint,omitempty"`
	DurationMs int64                  `json:"duration_ms,omitempty"`
	Truncated  bool                   `json:"truncated,omitempty"`

	// Reason classifies failures, Detail describes them.
	Reason string `json:"reason,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// ErrorResponse is the body of failed configuration requests.
type ErrorResponse struct {
	Error string `json:"error"`
}
