// Copyright (c) 2016 Daniel Oaks <daniel@danieloaks.net>
// released under the MIT license

// Package mkcerts generates self-signed certificates for listeners and for
// the relay client's mutual-TLS identity.
package mkcerts

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"time"
)

// Usage selects what a generated certificate is good for.
type Usage int

const (
	// ServerUsage certificates are served by TLS listeners.
	ServerUsage Usage = iota
	// ClientUsage certificates authenticate the relay client to the backend.
	ClientUsage
)

const validFor = 365 * 24 * time.Hour

// CreateCertBytes creates a self-signed ECDSA certificate, returning the cert and key bytes.
func CreateCertBytes(orgName string, host string, usage Usage) (certBytes []byte, keyBytes []byte, err error) {
	validFrom := time.Now()

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate key: %w", err)
	}

	serialNumberLimit := new(big.Int).Lsh(big.NewInt(1), 128)
	serialNumber, err := rand.Int(rand.Reader, serialNumberLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{orgName},
			CommonName:   host,
		},
		NotBefore: validFrom,
		NotAfter:  validFrom.Add(validFor),

		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}

	switch usage {
	case ClientUsage:
		template.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}
	default:
		template.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}
		template.IPAddresses = []net.IP{net.ParseIP("127.0.0.1"), net.ParseIP("::1")}
		if host != "" && host != "localhost" {
			template.DNSNames = append(template.DNSNames, host)
		}
		template.DNSNames = append(template.DNSNames, "localhost")
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return nil, nil, fmt.Errorf("Failed to create certificate: %w", err)
	}

	certBytes = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: derBytes})

	b, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		return nil, nil, fmt.Errorf("Unable to marshal ECDSA private key: %w", err)
	}
	keyBytes = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: b})
	return certBytes, keyBytes, nil
}

// CreateCert creates a self-signed certificate, writing the cert and key to the given filenames.
func CreateCert(orgName string, host string, usage Usage, certFilename string, keyFilename string) error {
	certBytes, keyBytes, err := CreateCertBytes(orgName, host, usage)
	if err != nil {
		return err
	}

	if err := os.WriteFile(certFilename, certBytes, 0644); err != nil {
		return fmt.Errorf("failed to write out cert file %s: %w", certFilename, err)
	}
	if err := os.WriteFile(keyFilename, keyBytes, 0600); err != nil {
		return fmt.Errorf("failed to write out key file %s: %w", keyFilename, err)
	}
	return nil
}
