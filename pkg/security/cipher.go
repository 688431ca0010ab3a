package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltLen          = 16
	keyLen           = 32
	pbkdf2Iterations = 10000
)

var (
	// ErrSecretRequired signals an empty cipher secret.
	ErrSecretRequired = errors.New("cipher secret is required")
	// ErrMalformedToken signals a token that cannot be decoded or decrypted.
	ErrMalformedToken = errors.New("malformed encrypted token")
)

type numberEnvelope struct {
	Number json.RawMessage `json:"number"`
}

// EncryptNumber seals {"number": number} with a key derived from secret and
// returns it as a URL-safe base64 token.
func EncryptNumber(secret, number string) (string, error) {
	plain, err := json.Marshal(struct {
		Number string `json:"number"`
	}{Number: number})
	if err != nil {
		return "", fmt.Errorf("marshal invoice number: %w", err)
	}
	sealed, err := Seal(secret, plain)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// DecryptNumber reverses EncryptNumber. The decrypted plaintext may be either
// an object carrying "number" or a bare JSON scalar.
func DecryptNumber(secret, token string) (string, error) {
	raw, err := decodeToken(token)
	if err != nil {
		return "", err
	}
	plain, err := Open(secret, raw)
	if err != nil {
		return "", err
	}
	return extractNumber(plain)
}

// Seal encrypts plaintext with AES-256-GCM. Output layout is salt|nonce|ciphertext.
func Seal(secret string, plaintext []byte) ([]byte, error) {
	if secret == "" {
		return nil, ErrSecretRequired
	}
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	aead, err := newAEAD(secret, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	out := make([]byte, 0, saltLen+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, nil), nil
}

// Open decrypts a payload produced by Seal.
func Open(secret string, payload []byte) ([]byte, error) {
	if secret == "" {
		return nil, ErrSecretRequired
	}
	if len(payload) < saltLen {
		return nil, ErrMalformedToken
	}
	aead, err := newAEAD(secret, payload[:saltLen])
	if err != nil {
		return nil, err
	}
	rest := payload[saltLen:]
	if len(rest) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrMalformedToken
	}
	nonce, ciphertext := rest[:aead.NonceSize()], rest[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	return plain, nil
}

func newAEAD(secret string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(secret), salt, pbkdf2Iterations, keyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return aead, nil
}

func decodeToken(token string) ([]byte, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return nil, ErrMalformedToken
	}
	for _, enc := range []*base64.Encoding{
		base64.RawURLEncoding,
		base64.URLEncoding,
		base64.StdEncoding,
		base64.RawStdEncoding,
	} {
		if raw, err := enc.DecodeString(trimmed); err == nil {
			return raw, nil
		}
	}
	return nil, ErrMalformedToken
}

func extractNumber(plain []byte) (string, error) {
	plain = bytes.TrimSpace(plain)
	if len(plain) > 0 && plain[0] == '{' {
		var env numberEnvelope
		if err := json.Unmarshal(plain, &env); err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformedToken, err)
		}
		plain = env.Number
	}
	return scalarString(plain)
}

func scalarString(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", ErrMalformedToken
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return "", ErrMalformedToken
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	// Legacy tokens may carry the number without JSON quoting.
	return string(raw), nil
}
