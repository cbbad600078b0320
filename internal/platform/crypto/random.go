package crypto

import (
	"crypto/rand"
	"encoding/hex"
)

// RandomHex returns n bytes from crypto/rand, hex encoded (2n characters).
func RandomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// RandomString returns a random hex string of exactly length characters.
func RandomString(length int) (string, error) {
	s, err := RandomHex((length + 1) / 2)
	if err != nil {
		return "", err
	}
	return s[:length], nil
}
