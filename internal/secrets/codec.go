package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

const keyFileName = ".secret.key"

// SecurityError means the key file could not be protected from other users.
// An unprotected secret key is a worse failure mode than refusing to start,
// so callers must treat this as fatal.
type SecurityError struct {
	Path string
	Err  error
}

func (e *SecurityError) Error() string {
	return fmt.Sprintf("cannot restrict permissions on %s: %v", e.Path, e.Err)
}

func (e *SecurityError) Unwrap() error { return e.Err }

// Codec encrypts and decrypts token payloads with AES-256-GCM. The key is
// generated once and persisted next to the token file with owner-only
// permissions.
type Codec struct {
	dir string

	mu  sync.Mutex
	key []byte
}

func NewCodec(dir string) *Codec {
	return &Codec{dir: dir}
}

func (c *Codec) keyPath() string {
	return filepath.Join(c.dir, keyFileName)
}

func (c *Codec) getOrCreateKey() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.key != nil {
		return c.key, nil
	}

	path := c.keyPath()
	if b, err := os.ReadFile(path); err == nil && len(b) == 32 {
		c.key = b
		return b, nil
	}

	if err := os.MkdirAll(c.dir, 0o700); err != nil {
		return nil, fmt.Errorf("create key directory: %w", err)
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}

	if err := WriteFileAtomic(path, key, 0o600); err != nil {
		return nil, fmt.Errorf("persist key: %w", err)
	}
	if err := restrictToOwner(path); err != nil {
		_ = os.Remove(path)
		return nil, &SecurityError{Path: path, Err: err}
	}

	c.key = key
	return key, nil
}

// Encrypt seals plaintext with the persisted key. Output is nonce||ciphertext.
func (c *Codec) Encrypt(plain []byte) ([]byte, error) {
	key, err := c.getOrCreateKey()
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plain, nil), nil
}

// Decrypt opens a blob produced by Encrypt.
func (c *Codec) Decrypt(blob []byte) ([]byte, error) {
	key, err := c.getOrCreateKey()
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(blob) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce, ct := blob[:gcm.NonceSize()], blob[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ct, nil)
}
