package ctm

import (
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"
)

func TestLoadCertFileWithChain(t *testing.T) {
	dir := t.TempDir()
	chain := newTestChain(t, "example.test", "")
	certPath, keyPath := chain.writeFiles(t, dir, true)

	c, err := LoadCertFile(certPath, nil)
	if err != nil {
		t.Fatalf("LoadCertFile: %v", err)
	}
	if c.Leaf.Subject.CommonName != "example.test" {
		t.Errorf("leaf CN = %q, want example.test", c.Leaf.Subject.CommonName)
	}
	if c.Issuer == nil || c.Issuer.Subject.CommonName != "test-ca" {
		t.Errorf("issuer = %v, want test-ca", c.Issuer)
	}

	if _, err := loadKeyPair(c, keyPath); err != nil {
		t.Errorf("loadKeyPair: %v", err)
	}
}

func TestLoadCertFileTrustStoreFallback(t *testing.T) {
	dir := t.TempDir()
	chain := newTestChain(t, "example.test", "")
	// leaf only, no chain in the file: issuer must come from the pool.
	certPath, _ := chain.writeFiles(t, dir, false)

	pool := newTestPool(chain.issuerCert)
	c, err := LoadCertFile(certPath, pool)
	if err != nil {
		t.Fatalf("LoadCertFile: %v", err)
	}
	if c.Issuer == nil {
		t.Error("expected issuer from trust store, got nil")
	}
}

func TestLoadCertFileMissing(t *testing.T) {
	if _, err := LoadCertFile("/nonexistent/cert.pem", nil); !IsKind(err, KindLoadCert) {
		t.Errorf("got %v, want KindLoadCert", err)
	}
}

func TestLoadChainBadPEM(t *testing.T) {
	if _, err := LoadChain([]byte("not pem data"), nil, "inline"); !IsKind(err, KindParseCert) {
		t.Errorf("got %v, want KindParseCert", err)
	}
}

// TestIsIssuedBySameSubjectDifferentKeyID builds an impostor CA that
// shares the real issuer's Subject and signing key (so CheckSignatureFrom
// alone would accept it) but carries a different SubjectKeyId than the
// leaf's AuthorityKeyId — the reissued-CA case spec.md's "name and
// key-identifier match" predicate exists to disambiguate. A chain file
// listing the impostor before the real issuer must still resolve Issuer
// to the cert whose SubjectKeyId actually matches.
func TestIsIssuedBySameSubjectDifferentKeyID(t *testing.T) {
	chain := newTestChain(t, "example.test", "")

	now := chain.leafCert.NotBefore.Add(time.Hour)
	impostorTempl := &x509.Certificate{
		SerialNumber:          big.NewInt(99),
		Subject:               pkix.Name{CommonName: "test-ca"},
		NotBefore:             now.Add(-2 * time.Hour),
		NotAfter:              now.Add(48 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
		SubjectKeyId:          []byte{9, 9, 9, 9}, // deliberately not the leaf's AuthorityKeyId
	}
	impostorDER, err := x509.CreateCertificate(rand.Reader, impostorTempl, impostorTempl, chain.issuerKey.Public(), chain.issuerKey)
	if err != nil {
		t.Fatalf("x509.CreateCertificate(impostor): %v", err)
	}
	impostorCert, err := x509.ParseCertificate(impostorDER)
	if err != nil {
		t.Fatalf("x509.ParseCertificate(impostor): %v", err)
	}

	// Sanity check: the impostor really does verify the leaf's signature
	// (same underlying key), so a bare CheckSignatureFrom would accept it.
	if err := chain.leafCert.CheckSignatureFrom(impostorCert); err != nil {
		t.Fatalf("impostor does not share the real issuer's key: %v", err)
	}
	if isIssuedBy(chain.leafCert, impostorCert) {
		t.Error("isIssuedBy accepted an issuer with a mismatched key identifier")
	}
	if !isIssuedBy(chain.leafCert, chain.issuerCert) {
		t.Error("isIssuedBy rejected the real issuer")
	}

	pemData := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: chain.leafDER})
	pemData = append(pemData, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: impostorDER})...)
	pemData = append(pemData, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: chain.issuerDER})...)

	c, err := LoadChain(pemData, nil, "inline")
	if err != nil {
		t.Fatalf("LoadChain: %v", err)
	}
	if c.Issuer == nil || c.Issuer.SerialNumber.Cmp(chain.issuerCert.SerialNumber) != 0 {
		t.Errorf("Issuer = %v, want the real issuer (serial %v), not the impostor listed first", c.Issuer, chain.issuerCert.SerialNumber)
	}
}
