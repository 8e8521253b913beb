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
	"encoding/base64"
	"log"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/crypto/ocsp"
	"golang.org/x/sync/singleflight"
)

// ocspState tracks where a Context's stapling stands, mirroring the
// Unknown/Fetching/Valid/Failed state machine of spec.md §4.F.
type ocspState int

const (
	ocspUnknown ocspState = iota
	ocspFetching
	ocspValid
	ocspFailed
)

// ocspEntry is one cached OCSP response, keyed by ocsp_id_base64.
type ocspEntry struct {
	state    ocspState
	staple   []byte
	notAfter time.Time
}

// ocspCacheSize bounds memory use the way a fixed-size bud OCSP response
// table would; 4096 distinct CertIDs is far beyond any single worker's
// realistic context count.
const ocspCacheSize = 4096

var (
	ocspCache, _ = lru.New[string, *ocspEntry](ocspCacheSize)
	ocspFlight   singleflight.Group
)

// initOCSP computes the memoized OCSP derivations for ctx exactly once:
// the CertID, its base64 encoding, and the AIA responder URL. A Context
// with no issuer, or whose leaf carries no OCSP AIA entry, has nothing to
// staple and initOCSP leaves ocspHasURL false.
func initOCSP(ctx *Context) {
	ctx.ocspOnce.Do(func() {
		if ctx.Issuer == nil || len(ctx.Leaf.OCSPServer) == 0 {
			return
		}
		id, err := newCertID(ctx.Leaf, ctx.Issuer)
		if err != nil {
			return
		}
		der, err := id.marshal()
		if err != nil {
			return
		}
		ctx.ocspID = id
		ctx.ocspIDB64 = base64.StdEncoding.EncodeToString(der)
		ctx.ocspURL = ctx.Leaf.OCSPServer[0]
		ctx.ocspHasURL = true
	})
}

// stapledCertificate returns a copy of base with OCSPStaple populated from
// the cache when a fresh response is available. It never blocks a
// handshake on a network round trip: a cache miss kicks off an async
// refresh (deduplicated via singleflight on ocsp_id_base64) and the
// handshake proceeds without a staple, the same "best effort, never stall
// the connection" posture as the original's non-blocking OCSP state
// machine. With stapling.enabled false (the default), ctx.ocspPool is nil
// and this is a no-op.
func stapledCertificate(ctx *Context, base tls.Certificate) *tls.Certificate {
	initOCSP(ctx)
	if !ctx.ocspHasURL || ctx.ocspPool == nil {
		return &base
	}

	entry, ok := ocspCache.Get(ctx.ocspIDB64)
	if !ok || entry.state != ocspValid || time.Now().After(entry.notAfter) {
		go refreshOCSP(ctx)
		if !ok || entry == nil {
			return &base
		}
	}
	if entry.state == ocspValid && len(entry.staple) != 0 && !time.Now().After(entry.notAfter) {
		out := base
		out.OCSPStaple = entry.staple
		return &out
	}
	return &base
}

// refreshOCSP fetches a fresh OCSP response for ctx and stores it in
// ocspCache, deduplicating concurrent refreshes for the same CertID via
// singleflight.
func refreshOCSP(ctx *Context) {
	_, _, _ = ocspFlight.Do(ctx.ocspIDB64, func() (any, error) {
		entry, err := fetchOCSP(ctx)
		if err != nil {
			ocspCache.Add(ctx.ocspIDB64, &ocspEntry{state: ocspFailed})
			log.Printf("ERR  ocsp %s: %v", ctx.ServerName, err)
			return nil, err
		}
		ocspCache.Add(ctx.ocspIDB64, entry)
		return nil, nil
	})
}

// fetchOCSP asks ctx's stapling helper pool (spec.md §6: "get(host, port,
// query_fmt, argument)" returning "raw DER-encoded OCSP response for
// stapling") for a fresh response, keyed by ocsp_id_base64, and parses
// the result. The pool, not this module, is responsible for talking to
// the real-world AIA responder; ctm never dials ctx.ocspURL itself.
func fetchOCSP(ctx *Context) (*ocspEntry, error) {
	body, err := ctx.ocspPool.Get(ctx.staplingCfg.Host, ctx.staplingCfg.Port, ctx.staplingCfg.QueryFmt, ctx.ocspIDB64)
	if err != nil {
		return nil, err
	}
	parsed, err := ocsp.ParseResponseForCert(body, ctx.Leaf, ctx.Issuer)
	if err != nil {
		return nil, err
	}
	if parsed.Status != ocsp.Good {
		return &ocspEntry{state: ocspFailed}, nil
	}
	notAfter := parsed.NextUpdate
	if notAfter.IsZero() {
		notAfter = time.Now().Add(time.Hour)
	}
	return &ocspEntry{state: ocspValid, staple: body, notAfter: notAfter}, nil
}
