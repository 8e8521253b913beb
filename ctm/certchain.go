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
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"os"
)

// Chain is the result of loading a certificate file: the leaf, the full
// set of certs to present to peers (leaf + extra chain), and the issuer
// if one could be found (in the file or in the trust store).
type Chain struct {
	Leaf   *x509.Certificate
	Extra  []*x509.Certificate
	Issuer *x509.Certificate
}

// LoadCertFile opens path and parses a leaf certificate followed by an
// optional chain, per spec.md §4.C. trustedCAs backs the trust-store
// fallback when no issuer is found in the file itself.
func LoadCertFile(path string, trustedCAs *x509.CertPool) (*Chain, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errKind(KindLoadCert, path)
	}
	return LoadChain(data, trustedCAs, path)
}

// LoadChain parses leaf-then-chain PEM data. locus is only used to tag
// errors (normally the file path).
func LoadChain(pemData []byte, trustedCAs *x509.CertPool, locus string) (*Chain, error) {
	block, rest := pem.Decode(pemData)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, errKind(KindParseCert, locus)
	}
	leaf, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, errKind(KindParseCert, locus)
	}

	chain := &Chain{Leaf: leaf}

	// Drain the remaining PEM blocks as the extra chain, looking for the
	// first certificate that issued the leaf. This loop's natural
	// termination ("no more PEM blocks") is the Go analog of the
	// original's "PEM_R_NO_START_LINE" expected-EOF condition.
	for {
		var next *pem.Block
		next, rest = pem.Decode(rest)
		if next == nil {
			break
		}
		if next.Type != "CERTIFICATE" {
			continue
		}
		ca, err := x509.ParseCertificate(next.Bytes)
		if err != nil {
			return nil, errKind(KindParseCert, locus)
		}
		chain.Extra = append(chain.Extra, ca)
		if chain.Issuer == nil && isIssuedBy(leaf, ca) {
			chain.Issuer = ca
		}
	}

	if chain.Issuer == nil && trustedCAs != nil {
		chain.Issuer = lookupIssuer(leaf, trustedCAs)
	}

	return chain, nil
}

// loadKeyPair reads keyPath and pairs it with chain's leaf + extra certs,
// the separate "kParseKey" call in spec.md §4.C: cert parsing and key
// parsing are distinct failure kinds.
func loadKeyPair(chain *Chain, keyPath string) (tls.Certificate, error) {
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return tls.Certificate{}, errKind(KindParseKey, keyPath)
	}
	certPEM := encodeCertChainPEM(chain.Leaf, chain.Extra)
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return tls.Certificate{}, errKind(KindParseKey, keyPath)
	}
	cert.Leaf = chain.Leaf
	return cert, nil
}

func encodeCertChainPEM(leaf *x509.Certificate, extra []*x509.Certificate) []byte {
	var out []byte
	out = append(out, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: leaf.Raw})...)
	for _, c := range extra {
		out = append(out, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: c.Raw})...)
	}
	return out
}

// isIssuedBy is the closest Go stdlib equivalent of X509_check_issued:
// subject/issuer name and key-identifier match, on top of a valid
// signature. The AuthorityKeyId/SubjectKeyId prefilter disambiguates
// candidates that share a Subject but were not actually the signer (a
// reissued CA, a cross-signed root), the same case X509_check_akid
// guards against.
func isIssuedBy(cert, candidate *x509.Certificate) bool {
	if cert.Issuer.String() != candidate.Subject.String() {
		return false
	}
	if len(cert.AuthorityKeyId) > 0 && len(candidate.SubjectKeyId) > 0 &&
		!bytes.Equal(cert.AuthorityKeyId, candidate.SubjectKeyId) {
		return false
	}
	return cert.CheckSignatureFrom(candidate) == nil
}

// lookupIssuer consults the trust store the way
// X509_STORE_CTX_get1_issuer does: find any cert in the pool whose
// Subject matches cert's Issuer and whose signature verifies.
func lookupIssuer(cert *x509.Certificate, pool *x509.CertPool) *x509.Certificate {
	chains, err := cert.Verify(x509.VerifyOptions{Roots: pool})
	if err != nil || len(chains) == 0 {
		return nil
	}
	for _, chain := range chains {
		if len(chain) > 1 && isIssuedBy(cert, chain[1]) {
			return chain[1]
		}
	}
	return nil
}
