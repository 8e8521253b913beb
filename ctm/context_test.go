package ctm

import (
	"testing"
)

func TestBuildOneContextMinimal(t *testing.T) {
	dir := t.TempDir()
	chain := newTestChain(t, "example.test", "")
	certPath, keyPath := chain.writeFiles(t, dir, true)
	cfg := minimalTestConfig(certPath, keyPath)

	ctx, err := buildOneContext(cfg, "example.test", certPath, keyPath, "", "prime256v1", nil, false, nil)
	if err != nil {
		t.Fatalf("buildOneContext: %v", err)
	}
	if ctx.TLSConfig == nil || len(ctx.TLSConfig.Certificates) != 1 {
		t.Fatal("expected exactly one certificate installed")
	}
	if ctx.Leaf.Subject.CommonName != "example.test" {
		t.Errorf("leaf CN = %q", ctx.Leaf.Subject.CommonName)
	}
}

func TestBuildOneContextUnknownCurve(t *testing.T) {
	dir := t.TempDir()
	chain := newTestChain(t, "example.test", "")
	certPath, keyPath := chain.writeFiles(t, dir, true)
	cfg := minimalTestConfig(certPath, keyPath)

	if _, err := buildOneContext(cfg, "", certPath, keyPath, "", "not-a-curve", nil, false, nil); !IsKind(err, KindEcdhNotFound) {
		t.Errorf("got %v, want KindEcdhNotFound", err)
	}
}

func TestBuildOneContextNPNUnsupported(t *testing.T) {
	dir := t.TempDir()
	chain := newTestChain(t, "example.test", "")
	certPath, keyPath := chain.writeFiles(t, dir, true)
	cfg := minimalTestConfig(certPath, keyPath)

	if _, err := buildOneContext(cfg, "example.test", certPath, keyPath, "", "prime256v1", []string{"h2"}, false, nil); !IsKind(err, KindNPNNotSupported) {
		t.Errorf("got %v, want KindNPNNotSupported", err)
	}
}

func TestBuildOneContextBadCert(t *testing.T) {
	cfg := minimalTestConfig("/nonexistent/cert.pem", "/nonexistent/key.pem")
	if _, err := buildOneContext(cfg, "", cfg.Frontend.Cert, cfg.Frontend.Key, "", "prime256v1", nil, false, nil); !IsKind(err, KindLoadCert) {
		t.Errorf("got %v, want KindLoadCert", err)
	}
}

func TestBuildContextSetDefaultPlusContexts(t *testing.T) {
	dir := t.TempDir()
	defChain := newTestChain(t, "default.test", "")
	defCert, defKey := defChain.writeFiles(t, dir, true)

	vhostDir := t.TempDir()
	vhostChain := newTestChain(t, "vhost.test", "")
	vhostCert, vhostKey := vhostChain.writeFiles(t, vhostDir, true)

	cfg := minimalTestConfig(defCert, defKey)
	cfg.Contexts = []ContextConfig{
		{ServerName: "VHost.Test", Cert: vhostCert, Key: vhostKey},
	}

	set, err := BuildContextSet(cfg, nil, nil)
	if err != nil {
		t.Fatalf("BuildContextSet: %v", err)
	}
	if set.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", set.Len())
	}
	if set.Default().Leaf.Subject.CommonName != "default.test" {
		t.Errorf("default context leaf = %q", set.Default().Leaf.Subject.CommonName)
	}
	got := set.Select("vhost.test")
	if got.ServerName != "vhost.test" {
		t.Errorf("Select(vhost.test) = %q, want lowercased match", got.ServerName)
	}
	if set.Select("unknown.test") != set.Default() {
		t.Error("Select(unknown) should fall back to default")
	}
}

func TestBuildContextSetDuplicateServerName(t *testing.T) {
	dir := t.TempDir()
	chain := newTestChain(t, "dup.test", "")
	certPath, keyPath := chain.writeFiles(t, dir, true)

	cfg := minimalTestConfig(certPath, keyPath)
	cfg.Contexts = []ContextConfig{
		{ServerName: "dup.test", Cert: certPath, Key: keyPath},
		{ServerName: "DUP.TEST", Cert: certPath, Key: keyPath},
	}
	if _, err := BuildContextSet(cfg, nil, nil); !IsKind(err, KindBadServerName) {
		t.Errorf("got %v, want KindBadServerName", err)
	}
}

func TestBuildContextSetNonASCIIServerName(t *testing.T) {
	dir := t.TempDir()
	chain := newTestChain(t, "x.test", "")
	certPath, keyPath := chain.writeFiles(t, dir, true)

	cfg := minimalTestConfig(certPath, keyPath)
	cfg.Contexts = []ContextConfig{
		{ServerName: "café.test", Cert: certPath, Key: keyPath},
	}
	if _, err := BuildContextSet(cfg, nil, nil); !IsKind(err, KindBadServerName) {
		t.Errorf("got %v, want KindBadServerName", err)
	}
}

func TestBuildContextSetSNIEnabledNoPool(t *testing.T) {
	dir := t.TempDir()
	chain := newTestChain(t, "x.test", "")
	certPath, keyPath := chain.writeFiles(t, dir, true)

	cfg := minimalTestConfig(certPath, keyPath)
	cfg.SNI.Enabled = true
	cfg.Contexts = []ContextConfig{{ServerName: "x.test", Cert: certPath, Key: keyPath}}
	if _, err := BuildContextSet(cfg, nil, nil); !IsKind(err, KindSNINotSupported) {
		t.Errorf("got %v, want KindSNINotSupported", err)
	}
}

func TestBuildContextSetStaplingEnabledNoPool(t *testing.T) {
	dir := t.TempDir()
	chain := newTestChain(t, "x.test", "")
	certPath, keyPath := chain.writeFiles(t, dir, true)

	cfg := minimalTestConfig(certPath, keyPath)
	cfg.Stapling.Enabled = true
	if _, err := BuildContextSet(cfg, nil, nil); !IsKind(err, KindStaplingNotSupported) {
		t.Errorf("got %v, want KindStaplingNotSupported", err)
	}
}

// TestBuildOneContextStaplingWired confirms a Context built with
// stapling.enabled gets ctx.ocspPool populated from the pool passed to
// BuildContextSet, so stapledCertificate can actually reach it.
func TestBuildOneContextStaplingWired(t *testing.T) {
	dir := t.TempDir()
	chain := newTestChain(t, "x.test", "http://ocsp.example.test")
	certPath, keyPath := chain.writeFiles(t, dir, true)

	cfg := minimalTestConfig(certPath, keyPath)
	cfg.Stapling.Enabled = true
	cfg.Stapling.Host = "127.0.0.1"
	cfg.Stapling.Port = 9001
	cfg.Stapling.QueryFmt = "/bud/stapling/%s"

	pool := &fakeStaplingPool{}
	set, err := BuildContextSet(cfg, nil, pool)
	if err != nil {
		t.Fatalf("BuildContextSet: %v", err)
	}
	if set.Default().ocspPool != pool {
		t.Error("expected the default context's ocspPool to be the stapling pool")
	}
	if set.Default().staplingCfg.Port != 9001 {
		t.Errorf("staplingCfg.Port = %d, want 9001", set.Default().staplingCfg.Port)
	}
}

// TestBuildOneContextSystemTrustStoreDefault confirms a config with no
// explicit frontend.trusted_cas and a leaf-only cert file still builds,
// with the issuer lookup going to the platform trust store; since the
// test CA is not in that store, Issuer stays nil.
func TestBuildOneContextSystemTrustStoreDefault(t *testing.T) {
	dir := t.TempDir()
	chain := newTestChain(t, "x.test", "")
	// writeFiles(..., false) omits the issuer from the PEM file, so any
	// resolved Issuer must have come from the trust-store fallback.
	certPath, keyPath := chain.writeFiles(t, dir, false)
	cfg := minimalTestConfig(certPath, keyPath)

	ctx, err := buildOneContext(cfg, "", certPath, keyPath, "", "prime256v1", nil, false, nil)
	if err != nil {
		t.Fatalf("buildOneContext: %v", err)
	}
	// The test CA is not in the system trust store, so no issuer is
	// expected to resolve; the point is that buildOneContext attempts
	// the lookup (via x509.SystemCertPool()) rather than skipping it
	// outright because frontend.trusted_cas was empty.
	if ctx.Issuer != nil {
		t.Error("did not expect the self-signed test CA to verify against the system trust store")
	}
}
