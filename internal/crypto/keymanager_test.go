package crypto

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func testPEM(t *testing.T) []byte {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatal(err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
}

func TestEncryptDecryptPEM(t *testing.T) {
	plain := testPEM(t)
	doc, err := EncryptPEM(plain, "hunter2")
	if err != nil {
		t.Fatalf("EncryptPEM: %v", err)
	}
	if bytes.Contains(doc, []byte("PRIVATE KEY")) {
		t.Fatal("encrypted document leaks the PEM header")
	}

	got, err := DecryptPEM(doc, "hunter2")
	if err != nil {
		t.Fatalf("DecryptPEM: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Fatal("decrypted key differs")
	}
	if _, err := DecryptPEM(doc, "wrong"); err == nil {
		t.Fatal("wrong password accepted")
	}
}

func TestEncryptPEMRejectsNonPEM(t *testing.T) {
	if _, err := EncryptPEM([]byte("not a key"), "pw"); err == nil {
		t.Fatal("expected error")
	}
}

func TestLoadPEMSources(t *testing.T) {
	plain := testPEM(t)
	dir := t.TempDir()

	plainPath := filepath.Join(dir, "kalshi.pem")
	if err := os.WriteFile(plainPath, plain, 0o600); err != nil {
		t.Fatal(err)
	}
	doc, err := EncryptPEM(plain, "pw")
	if err != nil {
		t.Fatal(err)
	}
	encPath := filepath.Join(dir, "kalshi.enc.json")
	if err := os.WriteFile(encPath, doc, 0o600); err != nil {
		t.Fatal(err)
	}

	for name, cfg := range map[string]KeyConfig{
		"inline":    {PEM: string(plain)},
		"file":      {PEMPath: plainPath},
		"encrypted": {EncryptedKeyPath: encPath, KeyPassword: "pw"},
	} {
		got, err := LoadPEM(cfg)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if !bytes.Equal(got, plain) {
			t.Fatalf("%s: key differs", name)
		}
	}

	if _, err := LoadPEM(KeyConfig{}); !errors.Is(err, ErrNoKey) {
		t.Fatalf("err = %v, want ErrNoKey", err)
	}
}
