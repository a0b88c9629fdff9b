package cryptoutils

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/pkcs12"
)

// CertificateInfo describes the leaf certificate of a PKCS#12 file.
type CertificateInfo struct {
	Subject   string
	Issuer    string
	NotBefore time.Time
	NotAfter  time.Time
}

// PKCS12ToTLS decodes a PKCS#12 file protected by password into a TLS
// client certificate. Certificate chains bundled in the file are kept.
func PKCS12ToTLS(pfx []byte, password string) (tls.Certificate, error) {
	blocks, err := pkcs12.ToPEM(pfx, password)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to decode PKCS#12: %w", err)
	}

	var keyPEM, certPEM bytes.Buffer
	for _, block := range blocks {
		switch block.Type {
		case "CERTIFICATE":
			if err := pem.Encode(&certPEM, block); err != nil {
				return tls.Certificate{}, err
			}
		case "PRIVATE KEY":
			if err := pem.Encode(&keyPEM, block); err != nil {
				return tls.Certificate{}, err
			}
		}
	}

	if certPEM.Len() == 0 || keyPEM.Len() == 0 {
		return tls.Certificate{}, errors.New("PKCS#12 file must contain a certificate and a private key")
	}

	cert, err := tls.X509KeyPair(certPEM.Bytes(), keyPEM.Bytes())
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to build key pair: %w", err)
	}
	return cert, nil
}

// InspectPKCS12 returns the subject and validity window of the leaf certificate.
func InspectPKCS12(pfx []byte, password string) (*CertificateInfo, error) {
	cert, err := PKCS12ToTLS(pfx, password)
	if err != nil {
		return nil, err
	}

	leaf := cert.Leaf
	if leaf == nil {
		leaf, err = x509.ParseCertificate(cert.Certificate[0])
		if err != nil {
			return nil, fmt.Errorf("failed to parse leaf certificate: %w", err)
		}
	}

	return &CertificateInfo{
		Subject:   leaf.Subject.String(),
		Issuer:    leaf.Issuer.String(),
		NotBefore: leaf.NotBefore.UTC(),
		NotAfter:  leaf.NotAfter.UTC(),
	}, nil
}
