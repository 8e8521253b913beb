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
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
)

// base64Encode is the stable, padded encoding used for ocsp_id_base64.
func base64Encode(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// npnWireEncode packs names into the length-prefixed wire format the NPN
// advertisement callback expects: one length byte followed by the name's
// bytes, repeated in order. An empty list encodes to nil, not []byte{}.
func npnWireEncode(names []string) ([]byte, error) {
	if len(names) == 0 {
		return nil, nil
	}
	var b cryptobyte.Builder
	for _, name := range names {
		if len(name) == 0 || len(name) > 255 {
			return nil, errKind(KindNPNLength, fmt.Sprintf("%q", name))
		}
		n := name
		b.AddUint8(uint8(len(n)))
		b.AddBytes([]byte(n))
	}
	return b.Bytes()
}

// npnWireDecode is the inverse of npnWireEncode, used to state the §8
// round-trip invariant as an executable test.
func npnWireDecode(data []byte) ([]string, error) {
	if len(data) == 0 {
		return nil, nil
	}
	s := cryptobyte.String(data)
	var names []string
	for !s.Empty() {
		var name cryptobyte.String
		if !s.ReadUint8LengthPrefixed(&name) || len(name) == 0 {
			return nil, errKind(KindNPNLength, "truncated NPN wire data")
		}
		names = append(names, string(name))
	}
	return names, nil
}
