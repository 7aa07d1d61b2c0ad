package crypto

import (
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	SaltSize = 16

	kekTime    = 1
	kekMemory  = 64 * 1024
	kekThreads = 4
)

var ErrBadPassphrase = errors.New("crypto: wrong passphrase or corrupted backup")

// DeriveKEK deriva a chave de embrulho com Argon2id(passphrase, salt)
func DeriveKEK(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, kekTime, kekMemory, kekThreads, chacha20poly1305.KeySize)
}

// SealPrivateKey cifra priv com uma senha que o servidor nunca vê.
// Formato: salt(16) || nonce(12) || ciphertext+tag.
func SealPrivateKey(passphrase string, priv PrivateKey) ([]byte, error) {
	if passphrase == "" {
		return nil, errors.New("crypto: empty passphrase")
	}

	out := make([]byte, SaltSize+NonceSize, SaltSize+NonceSize+len(priv)+chacha20poly1305.Overhead)
	if _, err := io.ReadFull(randReader, out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEntropyUnavailable, err)
	}

	kek := DeriveKEK(passphrase, out[:SaltSize])
	defer Wipe(kek)

	aead, err := chacha20poly1305.New(kek)
	if err != nil {
		return nil, err
	}
	return aead.Seal(out, out[SaltSize:SaltSize+NonceSize], priv, nil), nil
}

func OpenPrivateKey(passphrase string, sealed []byte) (PrivateKey, error) {
	if len(sealed) < SaltSize+NonceSize+chacha20poly1305.Overhead {
		return nil, ErrBadPassphrase
	}

	kek := DeriveKEK(passphrase, sealed[:SaltSize])
	defer Wipe(kek)

	aead, err := chacha20poly1305.New(kek)
	if err != nil {
		return nil, err
	}
	pt, err := aead.Open(nil, sealed[SaltSize:SaltSize+NonceSize], sealed[SaltSize+NonceSize:], nil)
	if err != nil {
		return nil, ErrBadPassphrase
	}
	return pt, nil
}
