package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const (
	sessionTokenSize = 16
	resetSecretSize  = 32
)

// NewSessionToken returns a fresh opaque session token: 128 bits of
// crypto/rand output, base64url without padding.
func NewSessionToken() (string, error) {
	var raw [sessionTokenSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// NewResetSecret returns the random secret half of a reset challenge.
func NewResetSecret() ([resetSecretSize]byte, error) {
	var secret [resetSecretSize]byte
	_, err := rand.Read(secret[:])
	return secret, err
}

// HashResetSecret reduces a reset secret to the digest kept in the store.
// Only the digest is ever persisted.
func HashResetSecret(secret [resetSecretSize]byte) [32]byte {
	return sha256.Sum256(secret[:])
}

// HashSecretBytes digests an arbitrary secret, used for one-time codes.
func HashSecretBytes(secret []byte) [32]byte {
	return sha256.Sum256(secret)
}

// EncodeResetChallenge joins a token id and its secret into the single
// opaque string handed to the mail collaborator. The id alone travels in the
// reset link; the full challenge is what the user presents back.
func EncodeResetChallenge(tokenID string, secret [resetSecretSize]byte) string {
	return tokenID + "." + base64.RawURLEncoding.EncodeToString(secret[:])
}

// DecodeResetChallenge splits a presented challenge back into token id and
// secret digest.
func DecodeResetChallenge(challenge string) (string, [32]byte, error) {
	var emptyHash [32]byte

	id, encoded, ok := strings.Cut(challenge, ".")
	if !ok || id == "" {
		return "", emptyHash, errors.New("invalid reset challenge format")
	}

	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", emptyHash, err
	}
	if len(raw) != resetSecretSize {
		return "", emptyHash, errors.New("invalid reset secret size")
	}

	var secret [resetSecretSize]byte
	copy(secret[:], raw)
	return id, HashResetSecret(secret), nil
}

// NewOTP returns a numeric one-time code of the requested length. Each digit
// is drawn independently from crypto/rand.
func NewOTP(digits int) (string, error) {
	if digits < 6 || digits > 10 {
		return "", errors.New("invalid otp digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	otp := b.String()
	if len(otp) != digits {
		return "", fmt.Errorf("invalid otp generation length")
	}
	return otp, nil
}
