package encryption

import "context"

// SaltStore is the narrow persistence seam Bootstrap needs from a store —
// satisfied by store.SQLiteStore's Salt/SetSalt methods without this
// package importing the store package directly.
type SaltStore interface {
	Salt(ctx context.Context) ([]byte, bool, error)
	SetSalt(ctx context.Context, salt []byte) error
}

// Bootstrap derives the encryption key for passphrase, reusing a previously
// persisted salt if one exists in s, or generating and persisting a fresh
// one on first use. It returns a ready-to-install Codec.
func Bootstrap(ctx context.Context, s SaltStore, passphrase string) (*Codec, error) {
	salt, ok, err := s.Salt(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		salt, err = NewSalt()
		if err != nil {
			return nil, err
		}
		if err := s.SetSalt(ctx, salt); err != nil {
			return nil, err
		}
	}
	key := DeriveKey(passphrase, salt)
	return NewCodec(key), nil
}
