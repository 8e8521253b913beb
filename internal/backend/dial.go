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

// Package backend dials the plaintext backend a terminated connection
// gets handed off to. It is bounded to connection setup: prepending the
// PROXY protocol v1 header when frontend.proxyline is set. Pumping
// application bytes between the TLS-terminated frontend connection and
// the dialed backend connection is out of scope for this module; see
// SPEC_FULL.md §1 Non-goals.
package backend

import (
	"net"
	"time"

	"github.com/pires/go-proxyproto"
)

// Dial connects to addr and, when proxyline is true, writes a PROXY
// protocol v1 header identifying src (the original client address) and
// addr before returning. keepalive configures TCP keepalive on the
// resulting connection, mirroring backend.keepalive from the frontend
// config (spec.md §4.B).
func Dial(addr *net.TCPAddr, src net.Addr, proxyline bool, keepalive time.Duration) (net.Conn, error) {
	conn, err := net.DialTCP("tcp", nil, addr)
	if err != nil {
		return nil, err
	}
	if keepalive > 0 {
		conn.SetKeepAlive(true)
		conn.SetKeepAlivePeriod(keepalive)
	}
	if proxyline {
		if err := writeProxyHeader(conn, src, conn.RemoteAddr()); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return conn, nil
}

// writeProxyHeader emits a PROXY protocol v1 line ahead of the backend
// connection's application data, the Go analog of the original's
// bud_backend_write_proxyline.
func writeProxyHeader(conn net.Conn, src, dst net.Addr) error {
	srcTCP, ok1 := src.(*net.TCPAddr)
	dstTCP, ok2 := dst.(*net.TCPAddr)
	if !ok1 || !ok2 {
		return nil
	}
	transport := proxyproto.TCPv4
	if srcTCP.IP.To4() == nil {
		transport = proxyproto.TCPv6
	}
	header := &proxyproto.Header{
		Version:           1,
		Command:           proxyproto.PROXY,
		TransportProtocol: transport,
		SourceAddr:        srcTCP,
		DestinationAddr:   dstTCP,
	}
	_, err := header.WriteTo(conn)
	return err
}
