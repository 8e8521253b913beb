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

// Package httppool implements ctm.HTTPPool: the SNI and OCSP-stapling
// helper services are plain HTTP servers reachable over loopback or the
// LAN, queried with a retrying client and deduplicated so that a burst of
// handshakes for the same hostname triggers one request, not N.
package httppool

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/sync/singleflight"
)

// Pool queries a bud-style helper HTTP service: the SNI pool on
// sni.port or the stapling pool on stapling.port, depending on which
// config section constructed it.
type Pool struct {
	client  *retryablehttp.Client
	flight  singleflight.Group
	timeout time.Duration
}

// New builds a Pool. timeout bounds each Get as a whole, retries and the
// waits between them included; a zero timeout defaults to 5 seconds, matching the original's blocking
// ex_data-suspend budget for a single SNI lookup.
func New(timeout time.Duration) *Pool {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	c := retryablehttp.NewClient()
	c.Logger = nil
	c.RetryMax = 2
	c.RetryWaitMin = 50 * time.Millisecond
	c.RetryWaitMax = 500 * time.Millisecond
	return &Pool{client: c, timeout: timeout}
}

// Get implements ctm.HTTPPool. It builds the request URL by substituting
// arg (URL-escaped) into queryFmt's single %s verb, the Go analog of the
// original's snprintf-into-a-fixed-buffer query construction, then GETs
// it from host:port. Concurrent identical lookups (same host, port,
// queryFmt, arg) share one underlying HTTP request.
func (p *Pool) Get(host string, port uint16, queryFmt, arg string) ([]byte, error) {
	key := fmt.Sprintf("%s|%d|%s|%s", host, port, queryFmt, arg)
	v, err, _ := p.flight.Do(key, func() (any, error) {
		return p.get(host, port, queryFmt, arg)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (p *Pool) get(host string, port uint16, queryFmt, arg string) ([]byte, error) {
	path := fmt.Sprintf(queryFmt, url.QueryEscape(arg))
	u := fmt.Sprintf("http://%s:%d%s", host, port, path)

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("user-agent", "bud")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("httppool: %s: status %d", u, resp.StatusCode)
	}
	return io.ReadAll(&io.LimitedReader{R: resp.Body, N: 1 << 20})
}
