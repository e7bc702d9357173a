package securestore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ReadFile loads path and decrypts it when secret is set. A missing file
// yields (nil, nil). Plaintext content is accepted with a secret so an
// unencrypted registry can be upgraded in place on the next write.
func ReadFile(path, secret string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	if secret == "" {
		if IsEncrypted(raw) {
			return nil, fmt.Errorf("%s is encrypted: %w", path, ErrAuthFailed)
		}
		return raw, nil
	}
	plain, err := Decrypt(secret, raw)
	if errors.Is(err, ErrPlaintext) {
		return raw, nil
	}
	return plain, err
}

// WriteFile encrypts payload when secret is set and replaces path atomically.
func WriteFile(path, secret string, payload []byte) error {
	data := payload
	if secret != "" {
		encrypted, err := Encrypt(secret, payload)
		if err != nil {
			return err
		}
		data = encrypted
	}
	return WriteFileAtomic(path, data, 0o600)
}

// WriteFileAtomic writes to a sibling temp file, syncs it and renames it
// over path, so readers see either the old or the new content.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}
