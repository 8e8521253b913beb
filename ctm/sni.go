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
	"fmt"
	"strings"
)

// Select resolves serverName against the locally known contexts only
// (spec.md §4.E step 1): a case-insensitive linear scan, falling back to
// the default context (index 0) when nothing matches or serverName is
// empty. It never consults the remote SNI pool.
func (s *ContextSet) Select(serverName string) *Context {
	name := strings.ToLower(serverName)
	for _, ctx := range s.contexts[1:] {
		if ctx.ServerName == name {
			return ctx
		}
	}
	return s.contexts[0]
}

// GetConfigForClient is the handshake-time hook wired to
// tls.Config.GetConfigForClient on every listener's base config. It
// implements spec.md §4.E in full: local resolution first, then — for an
// unrecognized name, when a remote SNI pool is configured — a blocking
// pool lookup, building a transient Context from whatever the pool
// returns rather than mutating the shared set.
//
// hello.Context() is cancelled by the crypto/tls machinery as soon as the
// underlying connection goes away, which is this module's stand-in for
// the original's kBudSSLSNIIndex suspend/resume dance: a Go handshake
// goroutine simply blocks in the pool lookup (bounded only by the pool's
// own timeout, since HTTPPool.Get takes no context) and, once it returns,
// resolveRemote discards the result if hello.Context() is already done.
func (s *ContextSet) GetConfigForClient(hello *tls.ClientHelloInfo) (*tls.Config, error) {
	name := strings.ToLower(hello.ServerName)
	if name == "" {
		return s.contexts[0].TLSConfig, nil
	}
	for _, ctx := range s.contexts[1:] {
		if ctx.ServerName == name {
			return ctx.TLSConfig, nil
		}
	}

	if s.pool == nil {
		return s.contexts[0].TLSConfig, nil
	}

	ctx, err := s.resolveRemote(hello, name)
	if err != nil {
		// A failed remote lookup falls back to the default identity
		// rather than aborting the handshake outright; an unknown
		// hostname is not itself a protocol error.
		return s.contexts[0].TLSConfig, nil //nolint:nilerr // fallback is intentional, see spec.md §4.E
	}
	return ctx.TLSConfig, nil
}

// resolveRemote asks the SNI pool for material for name and builds a
// transient Context from the result. The built Context is never added to
// s.contexts: each unrecognized name gets its own short-lived identity,
// matching the original's "unknown SNI is the slow, rare path" design.
func (s *ContextSet) resolveRemote(hello *tls.ClientHelloInfo, name string) (*Context, error) {
	cfg := s.cfg
	body, err := s.pool.Get(cfg.SNI.Host, cfg.SNI.Port, cfg.SNI.QueryFmt, name)
	if err != nil {
		return nil, err
	}
	certPath, keyPath, err := parseSNIResponse(body)
	if err != nil {
		return nil, err
	}

	if hc := hello.Context(); hc != nil {
		select {
		case <-hc.Done():
			return nil, hc.Err()
		default:
		}
	}

	return buildOneContext(cfg, name, certPath, keyPath, cfg.Frontend.Ciphers, cfg.Frontend.ECDH, cfg.Frontend.NPN, true, s.staplingPool)
}

// parseSNIResponse splits the pool's response body into a cert path and
// a key path, newline-separated ("cert\nkey"), the simplest contract that
// satisfies spec.md §6's "opaque body, meaning defined by the pool
// service" wording.
func parseSNIResponse(body []byte) (certPath, keyPath string, err error) {
	parts := strings.SplitN(strings.TrimSpace(string(body)), "\n", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("sni response: malformed body")
	}
	return parts[0], parts[1], nil
}
