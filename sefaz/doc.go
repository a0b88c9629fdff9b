// Package sefaz talks to the tax authority status service (NFeStatusServico4).
//
// BuildStatusEnvelope renders the status request for an environment and
// state code. StatusClient posts it to the tenant's endpoint and classifies
// the outcome: a response with a body is a successful check whatever it
// says, an empty body or a transport failure is reported as a failed check,
// and only internal invariant violations come back as errors.
package sefaz
