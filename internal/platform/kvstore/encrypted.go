package kvstore

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrKeySize is returned by NewEncrypted for keys that are not 32 bytes.
var ErrKeySize = errors.New("encryption key must be 32 bytes")

// Encrypted seals every value with AES-256-GCM before handing it to the
// wrapped store. Entry names stay in the clear and are bound to their value
// as associated data, so a value copied under another name does not open.
// Anything that does not open (wrong key, tampering, plaintext left over from
// before encryption was enabled) reads as absent.
type Encrypted struct {
	inner Store
	aead  cipher.AEAD
}

// NewEncrypted wraps inner with the given 32-byte key.
func NewEncrypted(inner Store, key []byte) (*Encrypted, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("%w: got %d", ErrKeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return &Encrypted{inner: inner, aead: aead}, nil
}

func (e *Encrypted) Get(ctx context.Context, key string) (string, bool, error) {
	sealed, found, err := e.inner.Get(ctx, key)
	if err != nil || !found {
		return "", found, err
	}
	plain, ok := e.open(key, sealed)
	return plain, ok, nil
}

func (e *Encrypted) Set(ctx context.Context, key, value string) error {
	sealed, err := e.seal(key, value)
	if err != nil {
		return fmt.Errorf("seal %s: %w", key, err)
	}
	return e.inner.Set(ctx, key, sealed)
}

func (e *Encrypted) Delete(ctx context.Context, keys ...string) error {
	return e.inner.Delete(ctx, keys...)
}

// seal encodes nonce followed by ciphertext as unpadded URL-safe base64.
func (e *Encrypted) seal(key, value string) (string, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	box := e.aead.Seal(nonce, nonce, []byte(value), []byte(key))
	return base64.RawURLEncoding.EncodeToString(box), nil
}

func (e *Encrypted) open(key, sealed string) (string, bool) {
	box, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil || len(box) < e.aead.NonceSize() {
		return "", false
	}
	n := e.aead.NonceSize()
	plain, err := e.aead.Open(nil, box[:n], box[n:], []byte(key))
	if err != nil {
		return "", false
	}
	return string(plain), true
}
