package oidc

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// codeAlphabet is the 64-symbol URL-safe alphabet used by nanoid, so a byte
// masked to 6 bits indexes it without bias.
const codeAlphabet = "useandom-26T198340PX75pxJACKVERYMINDBUSHWOLF_GQZbfghjklqvwyzrict"

// CodeLength is the size of an issued authorization code.
const CodeLength = 8

// RandomCode returns an unpredictable URL-safe string of length symbols.
func RandomCode(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i := range buf {
		buf[i] = codeAlphabet[buf[i]&63]
	}
	return string(buf), nil
}

// HashToken returns a hex-encoded SHA-256 hash.
func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
