// Package common holds process-wide helpers shared by the gateway binaries.
package common

var (
	// PackageName is used as the metrics namespace and the default log service name.
	PackageName = "sefaz-config-gateway"

	// Version is overridden at build time with -ldflags "-X ...common.Version=...".
	Version = "dev"
)
