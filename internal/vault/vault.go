// Package vault encrypts custom field values at rest.
package vault

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

const (
	keySize   = 32
	nonceSize = 24
)

// ErrCiphertext is returned when a stored value cannot be opened with the key.
var ErrCiphertext = errors.New("vault: ciphertext is malformed or was sealed with another key")

// salt is fixed so the same passphrase always yields the same key across restarts.
var salt = []byte("ticket-engine/custom-fields/v1")

// Vault seals values with NaCl secretbox under a key derived from a passphrase.
type Vault struct {
	key [keySize]byte
}

// New derives the sealing key from passphrase.
func New(passphrase string) (*Vault, error) {
	if passphrase == "" {
		return nil, errors.New("vault: empty passphrase")
	}
	derived, err := scrypt.Key([]byte(passphrase), salt, 1<<15, 8, 1, keySize)
	if err != nil {
		return nil, fmt.Errorf("vault: derive key: %w", err)
	}
	v := &Vault{}
	copy(v.key[:], derived)
	return v, nil
}

// Encrypt returns base64 of nonce||box.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("vault: read nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &v.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (v *Vault) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil || len(raw) < nonceSize+secretbox.Overhead {
		return "", ErrCiphertext
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	opened, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &v.key)
	if !ok {
		return "", ErrCiphertext
	}
	return string(opened), nil
}
