package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainRewrite = "exprmatch/rewrite/v1"
	DomainPolicy  = "exprmatch/policy/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// canonicalJSON is the byte form identities are hashed over: MarshalJSON
// with every string and key NFC normalized, so canonically equivalent
// text hashes the same.
func canonicalJSON(v Value) ([]byte, error) {
	return marshal(v, true)
}

// PolicyHash computes the identity of an optimizer policy document.
func PolicyHash(policy Document) (string, error) {
	data, err := canonicalJSON(policy)
	if err != nil {
		return "", fmt.Errorf("PolicyHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainPolicy, data), nil
}

// RewriteID computes the content-addressed ID of a rewrite: the same filter
// rewritten under the same policy always gets the same ID.
func RewriteID(policyHash string, input Document) (string, error) {
	obj := D(
		E("policy", String(policyHash)),
		E("input", input),
	)
	data, err := canonicalJSON(obj)
	if err != nil {
		return "", fmt.Errorf("RewriteID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainRewrite, data), nil
}

// MustRewriteID is like RewriteID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustRewriteID(policyHash string, input Document) string {
	id, err := RewriteID(policyHash, input)
	if err != nil {
		panic(err)
	}
	return id
}
