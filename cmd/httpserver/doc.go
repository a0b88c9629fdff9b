// Package main (cmd/httpserver) runs the SEFAZ configuration gateway.
//
// The gateway keeps one configuration record per tenant (CNPJ) as a JSON
// file under --storage-dir, stores uploaded certificates in one or more blob
// backends (file:// or s3://, see --certificate-backends) and seals their
// passphrases in a secret store: the built-in sealed store keyed by
// --secret-key, or HashiCorp Vault when --secret-store is a vault:// URI.
//
// Every flag can also be set through its environment variable, and a dotenv
// file (--env-file, default .env) is loaded before flags are read.
//
// The server implements graceful shutdown on SIGINT/SIGTERM and serves
// health checks, Prometheus metrics on --metrics-addr and optional pprof.
//
// Example usage:
//
//	sefaz-config-gateway --listen-addr=0.0.0.0:3030 \
//	    --storage-dir=/var/lib/sefaz \
//	    --secret-key=$(openssl rand -hex 32) \
//	    --certificate-backends=file:///var/lib/sefaz/certificados,s3://certs/prod?region=sa-east-1 \
//	    --status-rate-limit=1
//
// With Vault holding the passphrases:
//
//	VAULT_TOKEN=... sefaz-config-gateway --secret-store=vault://vault:8200/secret/sefaz
package main
