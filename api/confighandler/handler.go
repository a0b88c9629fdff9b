package confighandler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/sefaz-config-gateway/api"
	"github.com/ruteri/sefaz-config-gateway/interfaces"
	"github.com/ruteri/sefaz-config-gateway/metrics"
)

// DefaultMaxUploadBytes bounds certificate upload requests.
const DefaultMaxUploadBytes = 10 << 20

// multipartMemory is the part of an upload kept in memory; the rest spills to disk.
const multipartMemory = 1 << 20

const (
	msgMissingCNPJ        = "CNPJ é obrigatório."
	msgMissingCertificate = "Certificado é obrigatório."
	msgInvalidEnvironment = "Ambiente inválido."
	msgCertificateSaved   = "Certificado salvo!"
	msgEnvironmentChanged = "Ambiente alterado para %s"
)

// Handler processes HTTP requests for tenant configuration.
type Handler struct {
	configs interfaces.ConfigStore
	certs   interfaces.CertificateVault
	status  interfaces.StatusChecker

	limiter        *TenantRateLimiter
	maxUploadBytes int64
	metrics        *metrics.Metrics
	log            *slog.Logger
}

// NewHandler creates a new HTTP request handler for tenant configuration.
//
// Parameters:
//   - configs: durable tenant configuration store
//   - certs: certificate blob and passphrase storage
//   - status: status service check
//   - log: Structured logger for operational insights
func NewHandler(configs interfaces.ConfigStore, certs interfaces.CertificateVault, status interfaces.StatusChecker, log *slog.Logger) *Handler {
	return &Handler{
		configs:        configs,
		certs:          certs,
		status:         status,
		maxUploadBytes: DefaultMaxUploadBytes,
		log:            log,
	}
}

// WithRateLimiter limits status checks per tenant.
func (h *Handler) WithRateLimiter(l *TenantRateLimiter) *Handler {
	h.limiter = l
	return h
}

// WithMaxUploadBytes overrides the certificate upload size limit.
func (h *Handler) WithMaxUploadBytes(n int64) *Handler {
	if n > 0 {
		h.maxUploadBytes = n
	}
	return h
}

// WithMetrics records rate-limited checks.
func (h *Handler) WithMetrics(m *metrics.Metrics) *Handler {
	h.metrics = m
	return h
}

// RegisterRoutes configures the HTTP router with the configuration endpoints:
//   - POST /api/config/upload-certificado
//   - POST /api/config/ambiente
//   - GET /api/config/testar/{cnpj}
//   - GET /api/config/{cnpj}
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/config/upload-certificado", h.HandleUploadCertificate)
	r.Post("/api/config/ambiente", h.HandleSetEnvironment)
	r.Get("/api/config/testar/{cnpj}", h.HandleStatusCheck)
	r.Get("/api/config/{cnpj}", h.HandleGetConfig)
}

// HandleUploadCertificate stores an uploaded certificate and attaches it to
// the tenant configuration.
//
// URL format: POST /api/config/upload-certificado (multipart: cnpj, certificado, senha)
//
// Status codes:
//   - 200 OK: certificate stored, body is api.ConfigResponse
//   - 400 Bad Request: missing cnpj or file
//   - 413 Request Entity Too Large: upload exceeds the size limit
//   - 500 Internal Server Error: storage failure
func (h *Handler) HandleUploadCertificate(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > h.maxUploadBytes {
		h.writeTooLarge(w)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeTooLarge(w)
			return
		}
		h.writeError(w, http.StatusBadRequest, "Formulário multipart inválido.")
		return
	}
	defer r.MultipartForm.RemoveAll()

	cnpj := r.FormValue("cnpj")
	if cnpj == "" {
		h.writeError(w, http.StatusBadRequest, msgMissingCNPJ)
		return
	}
	id, err := interfaces.NewTenantID(cnpj)
	if err != nil {
		h.writeConfigError(w, err)
		return
	}

	file, header, err := r.FormFile("certificado")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, msgMissingCertificate)
		return
	}
	defer file.Close()

	ref, err := h.certs.Store(r.Context(), id, file, header.Filename, r.FormValue("senha"))
	if err != nil {
		h.log.Error("Failed to store certificate", "err", err, slog.String("tenantId", id.String()))
		h.writeConfigError(w, err)
		return
	}

	cfg, err := h.configs.AttachCertificate(r.Context(), id, ref)
	if err != nil {
		h.log.Error("Failed to attach certificate", "err", err,
			slog.String("tenantId", id.String()),
			slog.String("storageRef", ref.StorageRef))
		h.writeConfigError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, api.ConfigResponse{Message: msgCertificateSaved, Config: cfg})
}

// HandleSetEnvironment switches the tenant between production and homolog.
//
// URL format: POST /api/config/ambiente (JSON api.SetEnvironmentRequest)
//
// Status codes:
//   - 200 OK: environment updated, body is api.ConfigResponse
//   - 400 Bad Request: malformed body, missing cnpj or invalid environment
//   - 500 Internal Server Error: storage failure
func (h *Handler) HandleSetEnvironment(w http.ResponseWriter, r *http.Request) {
	var req api.SetEnvironmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Corpo JSON inválido.")
		return
	}

	if _, err := interfaces.ParseEnvironment(req.Ambiente); err != nil {
		h.writeError(w, http.StatusBadRequest, msgInvalidEnvironment)
		return
	}
	if req.CNPJ == "" {
		h.writeError(w, http.StatusBadRequest, msgMissingCNPJ)
		return
	}
	id, err := interfaces.NewTenantID(req.CNPJ)
	if err != nil {
		h.writeConfigError(w, err)
		return
	}

	cfg, err := h.configs.SetEnvironment(r.Context(), id, req.Ambiente)
	if err != nil {
		h.log.Error("Failed to set environment", "err", err, slog.String("tenantId", id.String()))
		h.writeConfigError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, api.ConfigResponse{
		Message: fmt.Sprintf(msgEnvironmentChanged, cfg.Environment),
		Config:  cfg,
	})
}

// HandleGetConfig returns the tenant configuration, creating it on first access.
//
// URL format: GET /api/config/{cnpj}
//
// Status codes:
//   - 200 OK: body is the tenant configuration
//   - 400 Bad Request: invalid cnpj
//   - 500 Internal Server Error: storage failure
func (h *Handler) HandleGetConfig(w http.ResponseWriter, r *http.Request) {
	id, err := interfaces.NewTenantID(chi.URLParam(r, "cnpj"))
	if err != nil {
		h.writeConfigError(w, err)
		return
	}

	cfg, err := h.configs.Load(r.Context(), id)
	if err != nil {
		h.log.Error("Failed to load config", "err", err, slog.String("tenantId", id.String()))
		h.writeConfigError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, cfg)
}

// HandleStatusCheck checks the status service of the tenant's environment.
//
// URL format: GET /api/config/testar/{cnpj}
//
// Status codes:
//   - 200 OK: the status service answered, body is api.StatusResponse with status "ok"
//   - 400 Bad Request: invalid cnpj
//   - 429 Too Many Requests: per-tenant check limit reached
//   - 500 Internal Server Error: the service did not answer, or the
//     configuration could not be loaded; body is api.StatusResponse with status "erro"
func (h *Handler) HandleStatusCheck(w http.ResponseWriter, r *http.Request) {
	id, err := interfaces.NewTenantID(chi.URLParam(r, "cnpj"))
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, api.StatusResponse{
			Status: api.StatusError,
			Reason: api.ReasonValidation,
			Detail: err.Error(),
		})
		return
	}

	if h.limiter != nil && !h.limiter.Allow(id.String()) {
		h.metrics.RecordRateLimited()
		w.Header().Set("Retry-After", "1")
		h.writeJSON(w, http.StatusTooManyRequests, api.StatusResponse{
			Status: api.StatusError,
			Reason: api.ReasonRateLimited,
			Detail: "too many status checks for this tenant",
		})
		return
	}

	cfg, err := h.configs.Load(r.Context(), id)
	if err != nil {
		h.log.Error("Failed to load config for status check", "err", err, slog.String("tenantId", id.String()))
		h.writeJSON(w, http.StatusInternalServerError, api.StatusResponse{
			Status: api.StatusError,
			Reason: failureReason(err),
			Detail: err.Error(),
		})
		return
	}

	result, err := h.status.Check(r.Context(), cfg)
	if err != nil {
		h.log.Error("Status check failed", "err", err,
			slog.String("tenantId", id.String()),
			slog.String("environment", cfg.Environment.String()))
		h.writeJSON(w, http.StatusInternalServerError, api.StatusResponse{
			Status:   api.StatusError,
			Ambiente: cfg.Environment,
			Reason:   failureReason(err),
			Detail:   err.Error(),
		})
		return
	}

	resp := api.StatusResponse{
		Resposta:   result.Raw,
		HTTPStatus: result.HTTPStatus,
		Ambiente:   result.Environment,
		Endpoint:   result.Endpoint,
		DurationMs: result.Duration.Milliseconds(),
		Truncated:  result.Truncated,
	}

	if !result.OK {
		resp.Status = api.StatusError
		resp.Reason = result.Reason
		if result.Err != nil {
			resp.Detail = result.Err.Error()
		}
		h.writeJSON(w, http.StatusInternalServerError, resp)
		return
	}

	resp.Status = api.StatusOK
	h.writeJSON(w, http.StatusOK, resp)
}

// writeConfigError maps validation errors to 400 and everything else to 500.
func (h *Handler) writeConfigError(w http.ResponseWriter, err error) {
	if errors.Is(err, interfaces.ErrValidation) {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeError(w, http.StatusInternalServerError, err.Error())
}

func (h *Handler) writeTooLarge(w http.ResponseWriter) {
	h.writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Arquivo excede o limite de %d bytes.", h.maxUploadBytes))
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, api.ErrorResponse{Error: msg})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, interfaces.ErrProtocol):
		return api.ReasonProtocol
	case errors.Is(err, interfaces.ErrValidation):
		return api.ReasonValidation
	default:
		return api.ReasonStorage
	}
}
