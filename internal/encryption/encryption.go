// Package encryption implements MemoryMesh's optional at-rest field
// encryption: authenticated HMAC-SHA256-CTR encryption of the text and
// metadata_json columns, keyed by a PBKDF2-derived key.
//
// This protects against casual inspection of the database file itself; it
// is not a substitute for full-disk encryption, and the construction has
// not been independently audited. Grounded on
// original_source/encryption.py, with key derivation following the
// golang.org/x/crypto/pbkdf2 usage pattern orneryd-NornicDB applies in its
// own encryption-at-rest feature (pkg/nornicdb/db.go's DeriveKey call).
package encryption

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"

	"golang.org/x/crypto/pbkdf2"

	"github.com/mmesh/memorymesh/internal/errs"
)

const (
	SaltLength       = 16
	KeyLength        = 32
	ivLength         = 16
	tagLength        = sha256.Size
	pbkdf2Iterations = 100_000
)

// NewSalt returns a fresh random 16-byte salt.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, errs.Wrap(errs.EncryptionError, "generate salt", errs.V("cause", err.Error()))
	}
	return salt, nil
}

// DeriveKey derives a 256-bit key from a passphrase and salt using
// PBKDF2-HMAC-SHA256 with 100,000 iterations, the OWASP-recommended
// minimum.
func DeriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, KeyLength, sha256.New)
}

func keystreamBlock(key, iv []byte, counter uint32) []byte {
	ctrInput := make([]byte, len(iv)+4)
	copy(ctrInput, iv)
	binary.BigEndian.PutUint32(ctrInput[len(iv):], counter)
	mac := hmac.New(sha256.New, key)
	mac.Write(ctrInput)
	return mac.Sum(nil)
}

func xorStream(key, iv, data []byte) []byte {
	out := make([]byte, len(data))
	var counter uint32
	offset := 0
	for offset < len(data) {
		block := keystreamBlock(key, iv, counter)
		n := len(block)
		if offset+n > len(data) {
			n = len(data) - offset
		}
		for i := 0; i < n; i++ {
			out[offset+i] = data[offset+i] ^ block[i]
		}
		offset += n
		counter++
	}
	return out
}

// EncryptField encrypts plaintext with key, returning
// base64(iv || ciphertext || hmac-tag). The tag authenticates iv||ciphertext
// under encrypt-then-MAC.
func EncryptField(plaintext string, key []byte) (string, error) {
	iv := make([]byte, ivLength)
	if _, err := rand.Read(iv); err != nil {
		return "", errs.Wrap(errs.EncryptionError, "generate iv", errs.V("cause", err.Error()))
	}

	ciphertext := xorStream(key, iv, []byte(plaintext))

	mac := hmac.New(sha256.New, key)
	mac.Write(iv)
	mac.Write(ciphertext)
	tag := mac.Sum(nil)

	raw := make([]byte, 0, len(iv)+len(ciphertext)+len(tag))
	raw = append(raw, iv...)
	raw = append(raw, ciphertext...)
	raw = append(raw, tag...)
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecryptField reverses EncryptField, verifying the authentication tag
// before decrypting. A tampered ciphertext or wrong key returns
// errs.EncryptionError.
func DecryptField(encoded string, key []byte) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", errs.Wrap(errs.EncryptionError, "decode ciphertext", errs.V("cause", err.Error()))
	}
	if len(raw) < ivLength+tagLength {
		return "", errs.Wrap(errs.EncryptionError, "ciphertext too short to contain iv and tag")
	}

	iv := raw[:ivLength]
	tag := raw[len(raw)-tagLength:]
	ciphertext := raw[ivLength : len(raw)-tagLength]

	mac := hmac.New(sha256.New, key)
	mac.Write(iv)
	mac.Write(ciphertext)
	expected := mac.Sum(nil)
	if subtle.ConstantTimeCompare(tag, expected) != 1 {
		return "", errs.Wrap(errs.EncryptionError, "authentication failed: wrong key or tampered data")
	}

	plaintext := xorStream(key, iv, ciphertext)
	return string(plaintext), nil
}
