// Package crypto protects the Kalshi API private key at rest. A PEM key can
// be stored encrypted with a password (PBKDF2-HMAC-SHA256 + AES-256-GCM) and
// resolved at startup.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Iterations = 480_000
	saltLen          = 16
	aesKeyLen        = 32
	currentVersion   = 1
)

// ErrNoKey is returned when no key source is configured.
var ErrNoKey = errors.New("crypto: no private key configured")

// encryptedKey is the on-disk format of an encrypted PEM key.
type encryptedKey struct {
	Version    int    `json:"version"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// KeyConfig lists where a PEM key may come from. The first non-empty source
// wins: inline PEM, plain PEM file, encrypted file.
type KeyConfig struct {
	PEM              string
	PEMPath          string
	EncryptedKeyPath string
	KeyPassword      string
}

// EncryptPEM encrypts a PEM encoded key with password and returns the JSON
// document to store.
func EncryptPEM(pemBytes []byte, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}
	if block, _ := pem.Decode(pemBytes); block == nil {
		return nil, errors.New("crypto: input is not PEM encoded")
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: generate salt: %w", err)
	}
	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: generate nonce: %w", err)
	}

	return json.MarshalIndent(encryptedKey{
		Version:    currentVersion,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, pemBytes, nil)),
	}, "", "  ")
}

// DecryptPEM reverses EncryptPEM.
func DecryptPEM(doc []byte, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}
	var stored encryptedKey
	if err := json.Unmarshal(doc, &stored); err != nil {
		return nil, fmt.Errorf("crypto: parse encrypted key: %w", err)
	}
	if stored.Version != currentVersion {
		return nil, fmt.Errorf("crypto: unsupported version %d", stored.Version)
	}

	var salt, nonce, ciphertext []byte
	for _, f := range []struct {
		dst  *[]byte
		src  string
		name string
	}{
		{&salt, stored.Salt, "salt"},
		{&nonce, stored.Nonce, "nonce"},
		{&ciphertext, stored.Ciphertext, "ciphertext"},
	} {
		b, err := base64.StdEncoding.DecodeString(f.src)
		if err != nil {
			return nil, fmt.Errorf("crypto: decode %s: %w", f.name, err)
		}
		*f.dst = b
	}

	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: decrypt (wrong password?): %w", err)
	}
	return plain, nil
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: create gcm: %w", err)
	}
	return gcm, nil
}

// LoadPEM resolves the configured key. It returns ErrNoKey when nothing is
// configured.
func LoadPEM(cfg KeyConfig) ([]byte, error) {
	switch {
	case cfg.PEM != "":
		return []byte(cfg.PEM), nil
	case cfg.PEMPath != "":
		b, err := os.ReadFile(cfg.PEMPath)
		if err != nil {
			return nil, fmt.Errorf("crypto: read key file: %w", err)
		}
		return b, nil
	case cfg.EncryptedKeyPath != "":
		b, err := os.ReadFile(cfg.EncryptedKeyPath)
		if err != nil {
			return nil, fmt.Errorf("crypto: read encrypted key file: %w", err)
		}
		return DecryptPEM(b, cfg.KeyPassword)
	default:
		return nil, ErrNoKey
	}
}
