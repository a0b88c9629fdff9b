// Package confighandler serves the tenant configuration routes of the gateway
// and provides a client for them.
//
// The handler only translates HTTP to the core components: a ConfigStore
// for the records, a CertificateVault for uploads and a StatusChecker for
// checks. Errors are mapped by kind: validation errors become 400, a
// rate-limited check 429 and everything else 500.
package confighandler
