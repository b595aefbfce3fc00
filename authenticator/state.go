package authenticator

import (
	"crypto/rand"
	"encoding/base64"
)

const stateBytes = 32

// GenerateState generates a random state value for CSRF protection
func GenerateState() (string, error) {
	b := make([]byte, stateBytes)
	_, err := rand.Read(b)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
