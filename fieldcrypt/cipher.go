package fieldcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	keySize = 32
	// versionedPrefix marks ciphertexts carrying their own random IV.
	versionedPrefix = "v1:"
	// Redacted is the placeholder substituted by [Cipher.RevealOrRedacted]
	// when a stored value cannot be decrypted.
	Redacted = "[unavailable]"
)

// ErrDecryptionFailed is returned by [Cipher.Reveal] for malformed input,
// a wrong key, or corrupted padding. Callers must treat it as non-fatal.
var ErrDecryptionFailed = errors.New("fieldcrypt: decryption failed")

// Mode selects the ciphertext format produced by [Cipher.Protect].
type Mode int

const (
	// RandomIV prepends a fresh random IV to every ciphertext. Equal
	// plaintexts produce different ciphertexts.
	RandomIV Mode = iota
	// LegacyDeterministic uses an all-zero IV for byte-compatibility with
	// ciphertexts produced before the format was versioned. Deterministic:
	// equal plaintexts always produce equal ciphertexts.
	LegacyDeterministic
)

// Cipher protects and reveals one field with a fixed key derived from a
// configured secret. Instances are immutable and safe for concurrent use.
type Cipher struct {
	key  [keySize]byte
	mode Mode
}

// New derives the AES-256 key from the secret, space-padded or truncated to
// exactly 32 bytes, matching the stored-data key schedule.
func New(secret string, mode Mode) (*Cipher, error) {
	if secret == "" {
		return nil, errors.New("fieldcrypt: empty secret")
	}
	if mode != RandomIV && mode != LegacyDeterministic {
		return nil, errors.New("fieldcrypt: unknown mode")
	}

	padded := secret
	if len(padded) < keySize {
		padded += strings.Repeat(" ", keySize-len(padded))
	}

	c := &Cipher{mode: mode}
	copy(c.key[:], padded[:keySize])
	return c, nil
}

// Protect encrypts a plaintext field and returns it base64-encoded in the
// configured format.
func (c *Cipher) Protect(plaintext string) (string, error) {
	block, err := aes.NewCipher(c.key[:])
	if err != nil {
		return "", err
	}

	padded := padPKCS7([]byte(plaintext), aes.BlockSize)

	iv := make([]byte, aes.BlockSize)
	if c.mode == RandomIV {
		if _, err := io.ReadFull(rand.Reader, iv); err != nil {
			return "", err
		}
	}

	encrypted := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(encrypted, padded)

	if c.mode == LegacyDeterministic {
		return base64.StdEncoding.EncodeToString(encrypted), nil
	}
	return versionedPrefix + base64.StdEncoding.EncodeToString(append(iv, encrypted...)), nil
}

// Reveal decrypts a protected field. Both formats are accepted regardless of
// the configured protect mode, so mixed stores keep working during a
// migration.
func (c *Cipher) Reveal(protected string) (string, error) {
	encoded, versioned := strings.CutPrefix(protected, versionedPrefix)

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	iv := make([]byte, aes.BlockSize)
	encrypted := raw
	if versioned {
		if len(raw) < aes.BlockSize {
			return "", fmt.Errorf("%w: short ciphertext", ErrDecryptionFailed)
		}
		iv = raw[:aes.BlockSize]
		encrypted = raw[aes.BlockSize:]
	}

	if len(encrypted) == 0 || len(encrypted)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: invalid ciphertext length", ErrDecryptionFailed)
	}

	block, err := aes.NewCipher(c.key[:])
	if err != nil {
		return "", err
	}

	decrypted := make([]byte, len(encrypted))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(decrypted, encrypted)

	plaintext, err := unpadPKCS7(decrypted, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// RevealOrRedacted decrypts a protected field, substituting [Redacted] when
// decryption fails, so a page render never aborts over one bad row.
func (c *Cipher) RevealOrRedacted(protected string) string {
	plaintext, err := c.Reveal(protected)
	if err != nil {
		return Redacted
	}
	return plaintext
}

func padPKCS7(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padding)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padding)
	}
	return padded
}

func unpadPKCS7(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("%w: invalid padded length", ErrDecryptionFailed)
	}

	padding := int(data[len(data)-1])
	if padding < 1 || padding > blockSize {
		return nil, fmt.Errorf("%w: invalid padding", ErrDecryptionFailed)
	}
	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, fmt.Errorf("%w: invalid padding", ErrDecryptionFailed)
		}
	}
	return data[:len(data)-padding], nil
}
