// Package fieldcipher implements the field-level encryption scheme used for
// every sensitive payload: AES-GCM over the UTF-8 plaintext under a
// hex-encoded project key, framed as "ivHex.cipherHex". The presence of a
// single "." is the signal used everywhere to tell an encrypted payload from
// legacy plaintext JSON.
package fieldcipher

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/zecrypt/zecrypt-go/internal/common"
)

// ivSize is the AES-GCM nonce length in bytes. Fixed at the GCM standard
// size; payloads written by every surface use the same length.
const ivSize = 12

// GenerateKey returns a fresh 256-bit project key as a 64-character hex
// string, the format keys are carried in everywhere (session storage, bridge
// payloads, the key vault).
func GenerateKey() string {
	return hex.EncodeToString(common.GenerateRandByteArray(32))
}

// parseKey decodes a hex project key and rejects lengths AES cannot use.
func parseKey(key string) ([]byte, error) {
	raw, err := hex.DecodeString(key)
	if err != nil {
		return nil, fmt.Errorf("%w: key is not valid hex", common.ErrDecryptionFailed)
	}
	switch len(raw) {
	case 16, 24, 32:
		return raw, nil
	}
	return nil, fmt.Errorf("%w: invalid key length %d", common.ErrDecryptionFailed, len(raw))
}

// Encrypt seals plaintext under key with a fresh random IV and returns the
// two-part wire form "ivHex.cipherHex".
func Encrypt(plaintext, key string) (string, error) {
	raw, err := parseKey(key)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(raw)

	block, err := aes.NewCipher(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrDecryptionFailed, err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrDecryptionFailed, err)
	}

	iv := common.GenerateRandByteArray(ivSize)
	ct := aesgcm.Seal(nil, iv, []byte(plaintext), nil)

	return hex.EncodeToString(iv) + "." + hex.EncodeToString(ct), nil
}

// IsEncrypted reports whether s looks like the "ivPart.cipherPart" wire form:
// exactly one dot with non-empty hex on both sides. Anything else is treated
// as legacy plaintext.
func IsEncrypted(s string) bool {
	ivPart, ctPart, ok := strings.Cut(s, ".")
	if !ok || ivPart == "" || ctPart == "" || strings.Contains(ctPart, ".") {
		return false
	}
	if _, err := hex.DecodeString(ivPart); err != nil {
		return false
	}
	if _, err := hex.DecodeString(ctPart); err != nil {
		return false
	}
	return true
}

// Decrypt opens a field produced by Encrypt. Input that does not carry the
// encrypted wire form is passed through unchanged; that is the documented
// legacy-compatibility path, not an error. A field that does look encrypted
// but fails the integrity check (wrong key, truncated IV, tampered
// ciphertext) returns ErrDecryptionFailed.
func Decrypt(field, key string) (string, error) {
	if !IsEncrypted(field) {
		return field, nil
	}

	ivPart, ctPart, _ := strings.Cut(field, ".")
	iv, _ := hex.DecodeString(ivPart)
	ct, _ := hex.DecodeString(ctPart)

	if len(iv) != ivSize {
		return "", fmt.Errorf("%w: invalid iv length %d", common.ErrDecryptionFailed, len(iv))
	}

	raw, err := parseKey(key)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(raw)

	block, err := aes.NewCipher(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrDecryptionFailed, err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrDecryptionFailed, err)
	}

	plaintext, err := aesgcm.Open(nil, iv, ct, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrDecryptionFailed, err)
	}
	return string(plaintext), nil
}
