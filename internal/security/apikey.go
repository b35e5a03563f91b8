package security

import (
	"crypto/rand"
	"encoding/hex"
)

const apiKeyBytes = 32

// GenerateAPIKey returns a fresh 64-character hex API key from crypto/rand.
func GenerateAPIKey() (string, error) {
	b := make([]byte, apiKeyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
