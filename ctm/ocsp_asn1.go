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

// This file hand-encodes the OCSP CertID ASN.1 structure (RFC 6960 §4.1.1).
// golang.org/x/crypto/ocsp builds an equivalent structure internally for
// CreateRequest but does not export it, so the standalone DER encoding
// this module needs for ocsp_id_base64 is implemented directly here. See
// DESIGN.md for why no pack dependency could serve this one piece.
package ctm

import (
	"crypto/sha1" //nolint:gosec // RFC 6960's default OCSP hash algorithm
	"crypto/x509"
	"encoding/asn1"
	"math/big"
)

var algorithmIdentifierSHA1 = pkixAlgorithmIdentifier{
	Algorithm: asn1.ObjectIdentifier{1, 3, 14, 3, 2, 26}, // id-sha1
}

// pkixAlgorithmIdentifier mirrors crypto/x509/pkix.AlgorithmIdentifier but
// is redeclared here to keep this file's ASN.1 schema self-contained and
// explicit about what it encodes.
type pkixAlgorithmIdentifier struct {
	Algorithm  asn1.ObjectIdentifier
	Parameters asn1.RawValue `asn1:"optional"`
}

// certID is the ASN.1 CertID structure:
//
//	CertID ::= SEQUENCE {
//	    hashAlgorithm  AlgorithmIdentifier,
//	    issuerNameHash OCTET STRING,
//	    issuerKeyHash  OCTET STRING,
//	    serialNumber   CertificateSerialNumber }
type certID struct {
	HashAlgorithm  pkixAlgorithmIdentifier
	IssuerNameHash []byte
	IssuerKeyHash  []byte
	SerialNumber   *big.Int
}

// newCertID computes a CertID for cert, issued by issuer, the Go analog
// of OCSP_cert_to_id(NULL, cert, issuer) (default hash: SHA-1).
func newCertID(cert, issuer *x509.Certificate) (*certID, error) {
	nameHash := sha1.Sum(issuer.RawSubject)
	keyHash, err := issuerKeyHash(issuer)
	if err != nil {
		return nil, err
	}
	return &certID{
		HashAlgorithm:  algorithmIdentifierSHA1,
		IssuerNameHash: nameHash[:],
		IssuerKeyHash:  keyHash,
		SerialNumber:   new(big.Int).Set(cert.SerialNumber),
	}, nil
}

// issuerKeyHash hashes the issuer's subjectPublicKey BIT STRING contents
// (not the full SubjectPublicKeyInfo), per RFC 6960 §4.1.1.
func issuerKeyHash(issuer *x509.Certificate) ([]byte, error) {
	var spki struct {
		Algorithm pkixAlgorithmIdentifier
		PublicKey asn1.BitString
	}
	if _, err := asn1.Unmarshal(issuer.RawSubjectPublicKeyInfo, &spki); err != nil {
		return nil, errKind(KindNoMem, "issuerKeyHash: "+err.Error())
	}
	h := sha1.Sum(spki.PublicKey.RightAlign())
	return h[:], nil
}

// marshal DER-encodes the CertID. A failed or zero-length encode is
// treated as failure and must not be memoized (spec.md §9 Open Question:
// "the i2d_OCSP_CERTID return value is not checked against zero; treat
// zero as failure").
func (id *certID) marshal() ([]byte, error) {
	der, err := asn1.Marshal(*id)
	if err != nil || len(der) == 0 {
		return nil, errKind(KindNoMem, "i2d_OCSP_CERTID")
	}
	return der, nil
}
