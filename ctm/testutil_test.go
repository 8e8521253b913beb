package ctm

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// testChain is a minimal self-signed-CA-issued leaf, generated fresh per
// test the way certmanager.createRootKeyAndCert/GetCert do, but trimmed
// to exactly what ctm's tests need: a leaf, its issuer, and their keys.
type testChain struct {
	leafCert   *x509.Certificate
	leafKey    *rsa.PrivateKey
	leafDER    []byte
	issuerCert *x509.Certificate
	issuerKey  *rsa.PrivateKey
	issuerDER  []byte
}

func newTestChain(t *testing.T, commonName string, ocspURL string) *testChain {
	t.Helper()

	caKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey(ca): %v", err)
	}
	now := time.Now()
	caTempl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "test-ca"},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
		SubjectKeyId:          []byte{1, 2, 3, 4},
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTempl, caTempl, caKey.Public(), caKey)
	if err != nil {
		t.Fatalf("x509.CreateCertificate(ca): %v", err)
	}
	caCert, err := x509.ParseCertificate(caDER)
	if err != nil {
		t.Fatalf("x509.ParseCertificate(ca): %v", err)
	}

	leafKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey(leaf): %v", err)
	}
	leafTempl := &x509.Certificate{
		SerialNumber:          big.NewInt(2),
		Subject:               pkix.Name{CommonName: commonName},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		BasicConstraintsValid: true,
		DNSNames:              []string{commonName},
		AuthorityKeyId:        caTempl.SubjectKeyId,
	}
	if ocspURL != "" {
		leafTempl.OCSPServer = []string{ocspURL}
	}
	leafDER, err := x509.CreateCertificate(rand.Reader, leafTempl, caCert, leafKey.Public(), caKey)
	if err != nil {
		t.Fatalf("x509.CreateCertificate(leaf): %v", err)
	}
	leafCert, err := x509.ParseCertificate(leafDER)
	if err != nil {
		t.Fatalf("x509.ParseCertificate(leaf): %v", err)
	}

	return &testChain{
		leafCert:   leafCert,
		leafKey:    leafKey,
		leafDER:    leafDER,
		issuerCert: caCert,
		issuerKey:  caKey,
		issuerDER:  caDER,
	}
}

// writeFiles PEM-encodes the leaf (+issuer, if includeChain) and the leaf
// key to dir, returning the cert and key file paths, the shape
// buildOneContext expects to read from disk.
func (c *testChain) writeFiles(t *testing.T, dir string, includeChain bool) (certPath, keyPath string) {
	t.Helper()
	var certPEM []byte
	certPEM = append(certPEM, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: c.leafDER})...)
	if includeChain {
		certPEM = append(certPEM, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: c.issuerDER})...)
	}
	keyDER := x509.MarshalPKCS1PrivateKey(c.leafKey)
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: keyDER})

	certPath = filepath.Join(dir, "cert.pem")
	keyPath = filepath.Join(dir, "key.pem")
	if err := os.WriteFile(certPath, certPEM, 0o600); err != nil {
		t.Fatalf("write cert: %v", err)
	}
	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	return certPath, keyPath
}

func newTestPool(certs ...*x509.Certificate) *x509.CertPool {
	pool := x509.NewCertPool()
	for _, c := range certs {
		pool.AddCert(c)
	}
	return pool
}

func minimalTestConfig(cert, key string) *Config {
	cfg := &Config{}
	cfg.Frontend.Cert = cert
	cfg.Frontend.Key = key
	cfg.Frontend.Security = "ssl23"
	cfg.Frontend.ECDH = "prime256v1"
	return cfg
}
