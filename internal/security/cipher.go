package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidCiphertext is returned when a stored ciphertext token is malformed.
var ErrInvalidCiphertext = errors.New("invalid ciphertext")

// Cipher encrypts and decrypts opaque strings with AES-CFB. The wire format is
// hex(ciphertext) + "|" + hex(iv); a fresh random IV is generated per Encrypt
// call, so encrypting the same plaintext twice yields different tokens.
type Cipher struct {
	block cipher.Block
}

// NewCipher returns a Cipher for the given AES key (16, 24, or 32 bytes).
func NewCipher(key []byte) (*Cipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: %w", err)
	}
	return &Cipher{block: block}, nil
}

// Encrypt encrypts plaintext and returns the hex|hex ciphertext token.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}
	ct := make([]byte, len(plaintext))
	cipher.NewCFBEncrypter(c.block, iv).XORKeyStream(ct, []byte(plaintext))
	return hex.EncodeToString(ct) + "|" + hex.EncodeToString(iv), nil
}

// Decrypt reverses Encrypt. Returns ErrInvalidCiphertext if the token is not
// in hex|hex form or the IV has the wrong length.
func (c *Cipher) Decrypt(token string) (string, error) {
	ctHex, ivHex, ok := strings.Cut(token, "|")
	if !ok {
		return "", ErrInvalidCiphertext
	}
	ct, err := hex.DecodeString(ctHex)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != aes.BlockSize {
		return "", ErrInvalidCiphertext
	}
	pt := make([]byte, len(ct))
	cipher.NewCFBDecrypter(c.block, iv).XORKeyStream(pt, ct)
	return string(pt), nil
}

// Fingerprint returns a SHA-256 hash of s, hex-encoded. Used for storing and
// comparing session refresh secrets without storing the raw secret.
func Fingerprint(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

// FingerprintEqual performs constant-time comparison of the provided secret's
// fingerprint with the stored fingerprint. Returns true only if they match.
func FingerprintEqual(providedSecret, storedFingerprint string) bool {
	provided := Fingerprint(providedSecret)
	return subtle.ConstantTimeCompare([]byte(provided), []byte(storedFingerprint)) == 1
}
