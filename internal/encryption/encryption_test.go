package encryption

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)
	key := DeriveKey("correct horse battery staple", salt)

	plaintext := "the user's api key is sk-abc123 and must stay private"
	ciphertext, err := EncryptField(plaintext, key)
	require.NoError(t, err)
	require.NotEqual(t, plaintext, ciphertext)

	got, err := DecryptField(ciphertext, key)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestEncryptFieldIsNonDeterministic(t *testing.T) {
	salt, _ := NewSalt()
	key := DeriveKey("pw", salt)
	a, err := EncryptField("same text", key)
	require.NoError(t, err)
	b, err := EncryptField("same text", key)
	require.NoError(t, err)
	require.NotEqual(t, a, b, "random IV should make repeated encryptions of the same text differ")
}

func TestDecryptFieldWrongKeyFails(t *testing.T) {
	salt, _ := NewSalt()
	key1 := DeriveKey("pw1", salt)
	key2 := DeriveKey("pw2", salt)

	ciphertext, err := EncryptField("secret", key1)
	require.NoError(t, err)

	_, err = DecryptField(ciphertext, key2)
	require.Error(t, err)
}

func TestDecryptFieldTamperedCiphertextFails(t *testing.T) {
	salt, _ := NewSalt()
	key := DeriveKey("pw", salt)
	ciphertext, err := EncryptField("secret", key)
	require.NoError(t, err)

	tampered := []byte(ciphertext)
	tampered[0] ^= 0xFF
	_, err = DecryptField(string(tampered), key)
	require.Error(t, err)
}

func TestDecryptFieldTruncatedCiphertextFails(t *testing.T) {
	key := DeriveKey("pw", []byte("0123456789abcdef"))
	_, err := DecryptField("dG9vc2hvcnQ=", key)
	require.Error(t, err)
}

func TestDeriveKeyIsDeterministic(t *testing.T) {
	salt := []byte("0123456789abcdef")
	k1 := DeriveKey("my passphrase", salt)
	k2 := DeriveKey("my passphrase", salt)
	require.Equal(t, k1, k2)
	require.Len(t, k1, KeyLength)
}

func TestDeriveKeyDiffersByPassphrase(t *testing.T) {
	salt := []byte("0123456789abcdef")
	require.NotEqual(t, DeriveKey("a", salt), DeriveKey("b", salt))
}

type fakeSaltStore struct {
	salt []byte
	has  bool
}

func (f *fakeSaltStore) Salt(ctx context.Context) ([]byte, bool, error) {
	return f.salt, f.has, nil
}

func (f *fakeSaltStore) SetSalt(ctx context.Context, salt []byte) error {
	f.salt = salt
	f.has = true
	return nil
}

func TestBootstrapGeneratesSaltOnFirstUse(t *testing.T) {
	s := &fakeSaltStore{}
	codec, err := Bootstrap(context.Background(), s, "pw")
	require.NoError(t, err)
	require.True(t, s.has)
	require.Len(t, s.salt, SaltLength)

	encoded, err := codec.Encode("hello")
	require.NoError(t, err)
	decoded, err := codec.Decode(encoded)
	require.NoError(t, err)
	require.Equal(t, "hello", decoded)
}

func TestBootstrapReusesExistingSalt(t *testing.T) {
	existingSalt := []byte("0123456789abcdef")
	s := &fakeSaltStore{salt: existingSalt, has: true}
	codec, err := Bootstrap(context.Background(), s, "pw")
	require.NoError(t, err)
	require.Equal(t, existingSalt, s.salt)

	expectedKey := DeriveKey("pw", existingSalt)
	require.Equal(t, NewCodec(expectedKey), codec)
}
