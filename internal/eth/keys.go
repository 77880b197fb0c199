package eth

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

var ErrInvalidPrivateKey = errors.New("eth: invalid private key")

// ParsePrivateKey parses one 32-byte hex secp256k1 key with optional 0x prefix.
// The returned error is sanitized and must not include key material.
func ParsePrivateKey(s string) (*ecdsa.PrivateKey, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	key, err := crypto.HexToECDSA(s)
	if err != nil {
		return nil, ErrInvalidPrivateKey
	}
	return key, nil
}

// ParsePrivateKeys parses wallet keys from a keys file or secret value.
//
// Input format:
// - one entry per line, or entries separated by commas
// - each entry is a hex key, optionally written as NAME=0x...
// - blank lines and lines starting with # are ignored
func ParsePrivateKeys(content string) ([]*ecdsa.PrivateKey, error) {
	var out []*ecdsa.PrivateKey
	for lineNo, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		for _, entry := range strings.Split(line, ",") {
			entry = strings.TrimSpace(entry)
			if entry == "" {
				continue
			}
			if i := strings.LastIndex(entry, "="); i >= 0 {
				entry = entry[i+1:]
			}
			key, err := ParsePrivateKey(entry)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d", ErrInvalidPrivateKey, lineNo+1)
			}
			out = append(out, key)
		}
	}
	if len(out) == 0 {
		return nil, ErrInvalidPrivateKey
	}
	return out, nil
}
