package securestore

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"docregistry/go-backend/internal/testutil/fsperm"
)

func TestEncryptDecryptRoundtrip(t *testing.T) {
	data, err := Encrypt("pass", []byte("secret"))
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	if !IsEncrypted(data) {
		t.Fatal("expected envelope prefix")
	}
	plain, err := Decrypt("pass", data)
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}
	if string(plain) != "secret" {
		t.Fatalf("unexpected plaintext: %q", string(plain))
	}
}

func TestDecryptWrongPassphrase(t *testing.T) {
	data, err := Encrypt("pass", []byte("secret"))
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	if _, err := Decrypt("other", data); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
}

func TestDecryptTamperedFailsDeterministically(t *testing.T) {
	data, err := Encrypt("pass", []byte("secret"))
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	if len(data) < 10 {
		t.Fatalf("unexpected encrypted payload size: %d", len(data))
	}
	data[len(data)-2] ^= 0xFF
	_, err = Decrypt("pass", data)
	if !errors.Is(err, ErrAuthFailed) && !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
}

func TestDecryptRejectsHostileKDFParams(t *testing.T) {
	env, err := EncryptEnvelope("pass", []byte("secret"))
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	env.KDFMemoryKB = maxKDFMemoryKB + 1
	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if _, err := Decrypt("pass", append([]byte(filePrefix), raw...)); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestWriteReadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "registry.json")

	if got, err := ReadFile(path, "pass"); err != nil || got != nil {
		t.Fatalf("missing file should read as empty: %q %v", got, err)
	}
	if err := WriteFile(path, "pass", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read raw failed: %v", err)
	}
	if !IsEncrypted(raw) {
		t.Fatal("expected encrypted file on disk")
	}
	fsperm.AssertPrivateFilePerm(t, path)
	fsperm.AssertPrivateDirPerm(t, filepath.Dir(path))
	got, err := ReadFile(path, "pass")
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(got) != `{"a":1}` {
		t.Fatalf("unexpected content %q", got)
	}
	if _, err := ReadFile(path, ""); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("reading encrypted file without secret should fail, got %v", err)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read dir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected no temp files left behind, got %d entries", len(entries))
	}
}

func TestReadFileAcceptsPlaintextWithSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.json")
	if err := WriteFile(path, "", []byte(`{}`)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	got, err := ReadFile(path, "pass")
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(got) != `{}` {
		t.Fatalf("unexpected content %q", got)
	}
}
