// Copyright (c) 2026 Cartisim contributors
// released under the MIT license

package mkcerts

import (
	"crypto/tls"
	"crypto/x509"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerCert(t *testing.T) {
	certBytes, keyBytes, err := CreateCertBytes("Cartisim", "relay.example.com", ServerUsage)
	require.NoError(t, err)

	pair, err := tls.X509KeyPair(certBytes, keyBytes)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(pair.Certificate[0])
	require.NoError(t, err)

	assert.Equal(t, []string{"relay.example.com", "localhost"}, cert.DNSNames)
	assert.Equal(t, []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}, cert.ExtKeyUsage)
	assert.NoError(t, cert.VerifyHostname("127.0.0.1"))
}

func TestClientCertFiles(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := filepath.Join(dir, "client.pem"), filepath.Join(dir, "client.key")
	require.NoError(t, CreateCert("Cartisim", "relayd", ClientUsage, certFile, keyFile))

	pair, err := tls.LoadX509KeyPair(certFile, keyFile)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(pair.Certificate[0])
	require.NoError(t, err)
	assert.Equal(t, []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}, cert.ExtKeyUsage)
	assert.Empty(t, cert.DNSNames)
	assert.Equal(t, "relayd", cert.Subject.CommonName)
}
