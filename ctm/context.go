// MIT License
//
// Copyright (c) 2023 TTBT Enterprises LLC
// Copyright (c) 2023 Robin Thellend <rthellend@rthellend.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package ctm

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
	"sync"
)

// HTTPPool is the external collaborator contract for the SNI and OCSP
// stapling helper services (spec.md §6). internal/httppool implements it.
type HTTPPool interface {
	Get(host string, port uint16, queryFmt, arg string) ([]byte, error)
}

// Context is a fully configured TLS server identity: cert, key, chain,
// cipher suite, curve, NPN, OCSP derivations, and the underlying
// *tls.Config. It is read-only once built, except for the memoized OCSP
// fields, which are computed at most once via sync.Once.
type Context struct {
	ServerName string // normalized lowercase; "" for the default context
	TLSConfig  *tls.Config

	Leaf   *x509.Certificate
	Issuer *x509.Certificate

	npnWire []byte // always nil once built: a non-empty NPN list makes buildOneContext fail

	ocspOnce    sync.Once
	ocspID      *certID
	ocspIDB64   string
	ocspURL     string // the leaf's AIA responder URL; diagnostic only, never dialed directly
	ocspHasURL  bool
	ocspPool    HTTPPool       // nil unless stapling.enabled; the helper pool OCSP responses are fetched through
	staplingCfg HTTPPoolConfig // stapling.host/port/query_fmt, copied from Config at build time
}

// ContextSet is the default context at index 0 followed by the configured
// contexts in order. It is built once per Config and is safe to share
// read-only across every handshake in a worker.
type ContextSet struct {
	cfg          *Config
	contexts     []*Context // [0] is always the default
	pool         HTTPPool   // the SNI pool passed to BuildContextSet; nil disables remote lookups
	staplingPool HTTPPool   // nil when stapling.enabled is false
}

// Config returns the immutable Config this set was built from.
func (s *ContextSet) Config() *Config { return s.cfg }

// Default returns the default context (index 0).
func (s *ContextSet) Default() *Context { return s.contexts[0] }

// Len returns 1 + len(cfg.Contexts).
func (s *ContextSet) Len() int { return len(s.contexts) }

// BuildContextSet constructs one Context per spec.md §4.D: the synthetic
// default from frontend.*, then one per cfg.Contexts, in order. Any
// failure rolls the whole set back — no partially built set is ever
// returned (§3 invariant 1, §7 "no partial mutation"). sniPool backs
// remote SNI resolution (required when sni.enabled and at least one
// context is configured; remote lookups run whenever it is non-nil); staplingPool backs
// OCSP response fetching (required when stapling.enabled). Either may be
// nil when its corresponding config section is disabled.
func BuildContextSet(cfg *Config, sniPool, staplingPool HTTPPool) (*ContextSet, error) {
	if len(cfg.Contexts) != 0 && sniPool == nil && cfg.SNI.Enabled {
		// Caller asked for remote SNI but gave no pool: treat it the
		// same as "library lacks SNI callback" would for a bud build
		// missing SSL_CTRL_SET_TLSEXT_SERVERNAME_CB.
		return nil, errKind(KindSNINotSupported, "sni.enabled but no HTTPPool provided")
	}
	if cfg.Stapling.Enabled && staplingPool == nil {
		return nil, errKind(KindStaplingNotSupported, "stapling.enabled but no HTTPPool provided")
	}

	seen := make(map[string]bool)
	contexts := make([]*Context, 0, len(cfg.Contexts)+1)

	defCtx, err := buildOneContext(cfg, "", cfg.Frontend.Cert, cfg.Frontend.Key,
		cfg.Frontend.Ciphers, cfg.Frontend.ECDH, cfg.Frontend.NPN, len(cfg.Contexts) != 0, staplingPool)
	if err != nil {
		return nil, fmt.Errorf("default context: %w", err)
	}
	contexts = append(contexts, defCtx)

	for i, cc := range cfg.Contexts {
		name := strings.ToLower(cc.ServerName)
		if !isASCII(name) {
			return nil, errKind(KindBadServerName, fmt.Sprintf("contexts[%d].servername", i))
		}
		if seen[name] {
			return nil, errKind(KindBadServerName, fmt.Sprintf("contexts[%d].servername: duplicate %q", i, name))
		}
		seen[name] = true

		ciphers := cc.Ciphers
		if ciphers == "" {
			ciphers = cfg.Frontend.Ciphers
		}
		ecdh := cc.ECDH
		if ecdh == "" {
			ecdh = cfg.Frontend.ECDH
		}
		npn := cc.NPN
		if npn == nil {
			npn = cfg.Frontend.NPN
		}
		ctx, err := buildOneContext(cfg, name, cc.Cert, cc.Key, ciphers, ecdh, npn, true, staplingPool)
		if err != nil {
			// Rollback: discard everything built so far. Go's GC
			// retires the free loop the original needed.
			return nil, fmt.Errorf("contexts[%d] (%q): %w", i, cc.ServerName, err)
		}
		contexts = append(contexts, ctx)
	}

	set := &ContextSet{cfg: cfg, contexts: contexts, pool: sniPool, staplingPool: staplingPool}
	return set, nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

// buildOneContext is component D: construct one *tls.Config from a
// ContextConfig's material, per the §4.D 10-step contract. staplingPool is
// the helper pool OCSP responses will be fetched through; it is only
// consulted when cfg.Stapling.Enabled.
func buildOneContext(cfg *Config, serverName, certPath, keyPath, ciphers, ecdh string, npn []string, sniRegistered bool, staplingPool HTTPPool) (*Context, error) {
	tc := &tls.Config{
		// Step 2/3: a fresh context, resumption disabled (SNI-capable
		// server pools make a local session cache incorrect).
		SessionTicketsDisabled: true,
	}

	// Step 1: method / version selection.
	switch cfg.Frontend.Security {
	case "tls1.0":
		tc.MinVersion, tc.MaxVersion = tls.VersionTLS10, tls.VersionTLS10
	case "tls1.1":
		tc.MinVersion, tc.MaxVersion = tls.VersionTLS11, tls.VersionTLS11
	case "tls1.2":
		tc.MinVersion, tc.MaxVersion = tls.VersionTLS12, tls.VersionTLS12
	case "ssl3":
		tc.MinVersion, tc.MaxVersion = tls.VersionSSL30, tls.VersionSSL30
	default:
		// "ssl23" and anything unrecognized: full negotiating range.
	}

	// Step 4: ECDH curve.
	curve, err := resolveCurve(ecdh)
	if err != nil {
		return nil, err
	}
	tc.CurvePreferences = []tls.CurveID{curve}

	// Step 5: cipher list (no-op if unset, lenient on unknown names).
	if ids := resolveCipherList(ciphers); ids != nil {
		tc.CipherSuites = ids
	}

	// Step 6: options. NO_SSLv2/NO_SSLv3 are inherent to Go's TLS stack;
	// frontend.ssl3 and PreferServerCipherSuites are carried on Config
	// for shape fidelity only (see SPEC_FULL.md §4.D translation table).
	tc.PreferServerCipherSuites = cfg.Frontend.ServerPreference //nolint:staticcheck // shape fidelity; see SPEC_FULL.md

	// Step 8: NPN. Go's crypto/tls has no NPN callback at all.
	wire, err := npnWireEncode(npn)
	if err != nil {
		return nil, err
	}
	if wire != nil {
		return nil, errKind(KindNPNNotSupported, serverName)
	}

	// Step 10: chain + key.
	var trustedCAs *x509.CertPool
	if len(cfg.Frontend.TrustedCAs) > 0 {
		trustedCAs = x509.NewCertPool()
		for _, p := range cfg.Frontend.TrustedCAs {
			if pemBytes, err := os.ReadFile(p); err == nil {
				trustedCAs.AppendCertsFromPEM(pemBytes)
			}
		}
	} else if sys, err := x509.SystemCertPool(); err == nil {
		// No explicit trusted_cas: fall back to the platform trust
		// store, the same default LoadCertFile's issuer fallback
		// needs for a leaf chained only through system roots.
		trustedCAs = sys
	}
	chain, err := LoadCertFile(certPath, trustedCAs)
	if err != nil {
		return nil, err
	}
	keyPair, err := loadKeyPair(chain, keyPath)
	if err != nil {
		return nil, err
	}
	tc.Certificates = []tls.Certificate{keyPair}

	ctx := &Context{
		ServerName:  serverName,
		TLSConfig:   tc,
		Leaf:        chain.Leaf,
		Issuer:      chain.Issuer,
		npnWire:     wire,
		staplingCfg: cfg.Stapling,
	}
	if cfg.Stapling.Enabled {
		ctx.ocspPool = staplingPool
	}

	// Step 9: OCSP status callback, wired as GetCertificate so a handshake
	// gets a freshly stapled certificate without mutating the cached
	// tls.Certificate. Because tc.Certificates is also set, crypto/tls only
	// calls GetCertificate when the client sent a server name; a handshake
	// without SNI is served Certificates[0] with no staple.
	base := keyPair
	tc.GetCertificate = func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
		return stapledCertificate(ctx, base), nil
	}

	return ctx, nil
}
