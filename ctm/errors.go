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

import "fmt"

// Kind identifies a class of startup error. Values mirror the bud_error_t
// taxonomy: they name a failure mode, not an instance.
type Kind int

const (
	KindUnknown Kind = iota
	KindJSONParse
	KindJSONRootNotObject
	KindJSONCtxNotObject
	KindNPNNonString
	KindNPNLength
	KindNPNNotSupported
	KindSNINotSupported
	KindStaplingNotSupported
	KindEcdhNotFound
	KindLoadCert
	KindParseCert
	KindParseKey
	KindPton
	KindExePath
	KindNoMem
	KindBadServerName
)

func (k Kind) String() string {
	switch k {
	case KindJSONParse:
		return "json_parse"
	case KindJSONRootNotObject:
		return "json_root_not_object"
	case KindJSONCtxNotObject:
		return "json_ctx_not_object"
	case KindNPNNonString:
		return "npn_non_string"
	case KindNPNLength:
		return "npn_length"
	case KindNPNNotSupported:
		return "npn_not_supported"
	case KindSNINotSupported:
		return "sni_not_supported"
	case KindStaplingNotSupported:
		return "stapling_not_supported"
	case KindEcdhNotFound:
		return "ecdh_not_found"
	case KindLoadCert:
		return "load_cert"
	case KindParseCert:
		return "parse_cert"
	case KindParseKey:
		return "parse_key"
	case KindPton:
		return "pton"
	case KindExePath:
		return "exe_path"
	case KindNoMem:
		return "no_mem"
	case KindBadServerName:
		return "bad_server_name"
	default:
		return "unknown"
	}
}

// Error is a startup or configuration error carrying the kind of failure
// and the configuration locus (a file path, a server name, a curve name,
// whatever identifies where it happened).
type Error struct {
	Kind   Kind
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func errKind(k Kind, detail string) error {
	return &Error{Kind: k, Detail: detail}
}

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, k Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == k
}
