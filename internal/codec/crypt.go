package codec

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"io"
	"strings"

	"filippo.io/age"
)

// Encrypt encrypts a UTF-8 payload with the given key and returns the
// ciphertext as base64 text, suitable for storage in a session file.
func Encrypt(plain, key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", securityErr("encryption requires a key", nil)
	}

	recipient, err := age.NewScryptRecipient(key)
	if err != nil {
		return "", securityErr("invalid encryption key", err)
	}

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, recipient)
	if err != nil {
		return "", securityErr("initializing encryption", err)
	}
	if _, err := io.WriteString(w, plain); err != nil {
		return "", securityErr("encrypting payload", err)
	}
	if err := w.Close(); err != nil {
		return "", securityErr("finalizing encryption", err)
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Decrypt reverses Encrypt. A wrong key fails with a SecurityError; it never
// silently yields wrong plaintext.
func Decrypt(cipher, key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", securityErr("decryption requires a key", nil)
	}

	identity, err := age.NewScryptIdentity(key)
	if err != nil {
		return "", securityErr("invalid encryption key", err)
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(cipher))
	if err != nil {
		return "", securityErr("decoding ciphertext", err)
	}

	r, err := age.Decrypt(bytes.NewReader(raw), identity)
	if err != nil {
		return "", securityErr("decryption failed", err)
	}
	plain, err := io.ReadAll(r)
	if err != nil {
		return "", securityErr("decryption failed", err)
	}

	return string(plain), nil
}

// GenerateKey returns a new random key for encrypting sessions at rest.
func GenerateKey() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", securityErr("generating key", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
