// Package encryption protects message content at rest.
//
// Content is sealed with AES-256-CBC under a single process-wide key and a
// fixed IV, encoded as standard base64. The scheme is deterministic: equal
// plaintexts produce equal ciphertexts. Rows written by earlier deployments
// depend on it, so it must not change without a data migration.
package encryption

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"fmt"

	"github.com/mmuslimabdulj/goat-whisper/internal/domain"
)

const (
	// KeySize is the required key length for AES-256
	KeySize = 32

	// IVSize is the required initialization vector length
	IVSize = aes.BlockSize
)

// Cipher encrypts and decrypts message payloads
type Cipher struct {
	block cipher.Block
	iv    []byte
}

// New creates a Cipher. A key or IV of the wrong length is a configuration
// error and should abort startup.
func New(key, iv []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be exactly %d bytes, got %d", KeySize, len(key))
	}
	if len(iv) != IVSize {
		return nil, fmt.Errorf("encryption IV must be exactly %d bytes, got %d", IVSize, len(iv))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init aes: %w", err)
	}

	ivCopy := make([]byte, IVSize)
	copy(ivCopy, iv)

	return &Cipher{block: block, iv: ivCopy}, nil
}

// Encrypt returns the base64 ciphertext of plaintext. Empty in, empty out.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	sealed, err := c.EncryptBytes([]byte(plaintext))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Empty in, empty out.
func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: ciphertext is not valid base64", domain.ErrCipher)
	}
	plain, err := c.DecryptBytes(raw)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// EncryptBytes seals a binary payload (attachments)
func (c *Cipher) EncryptBytes(data []byte) ([]byte, error) {
	padded := pad(data, aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(c.block, c.iv).CryptBlocks(out, padded)
	return out, nil
}

// DecryptBytes opens a payload sealed by EncryptBytes
func (c *Cipher) DecryptBytes(data []byte) ([]byte, error) {
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d is not a multiple of the block size", domain.ErrCipher, len(data))
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(c.block, c.iv).CryptBlocks(out, data)

	plain, err := unpad(out, aes.BlockSize)
	if err != nil {
		return nil, err
	}
	return plain, nil
}

// pad applies PKCS#7 padding
func pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(bytes.Clone(data), bytes.Repeat([]byte{byte(n)}, n)...)
}

// unpad strips PKCS#7 padding
func unpad(data []byte, blockSize int) ([]byte, error) {
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, fmt.Errorf("%w: invalid padding", domain.ErrCipher)
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("%w: invalid padding", domain.ErrCipher)
		}
	}
	return data[:len(data)-n], nil
}
