/*
Package api provides the HTTP surface of the SEFAZ configuration gateway.

This package is organized into two subpackages:

1. confighandler - Request processing for tenant configuration, certificate
upload and status checks, plus a client library for the same routes
2. servers - HTTP server configuration and lifecycle management

The package itself holds the wire types shared by handlers and clients.

# Routes

	POST /api/config/upload-certificado   multipart: cnpj, certificado (file), senha
	POST /api/config/ambiente             JSON: {"cnpj": "...", "ambiente": "production|homolog"}
	GET  /api/config/{cnpj}               tenant configuration, created on first access
	GET  /api/config/testar/{cnpj}        status check against the tenant's environment

Mutating routes answer with ConfigResponse. Configuration failures answer
with ErrorResponse and a 4xx status for bad input or 500 for storage
failures. The status route answers with StatusResponse; a check that did not
reach the tax authority is reported with status "erro" and a reason, so
callers can tell it apart from a configuration error.

# Operational Endpoints

	GET /livez     liveness
	GET /readyz    readiness, 503 while draining
	GET /drain     mark the server not ready
	GET /undrain   mark the server ready again
	/debug/*       pprof, when enabled
*/
package api
