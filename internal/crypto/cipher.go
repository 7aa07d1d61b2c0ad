package crypto

import (
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	envelopeVersion byte = 0x01

	NonceSize = chacha20poly1305.NonceSize

	// Overhead é o que o envelope soma ao plaintext
	Overhead = 1 + NonceSize + chacha20poly1305.Overhead
)

// ErrAuthenticationFailed cobre toda falha ao abrir um envelope, inclusive
// versão desconhecida e segredo errado.
var ErrAuthenticationFailed = errors.New("crypto: message authentication failed")

// Encrypt sela plaintext como version || nonce || ciphertext || tag.
//
// O nonce tem 96 bits aleatórios por chamada. Pelo limite do aniversário um
// segredo deve selar menos de 2^32 mensagens para manter a chance de colisão
// abaixo de 2^-32. Segredos são por par e canal e não são rotacionados.
func Encrypt(plaintext []byte, secret SharedSecret) ([]byte, error) {
	aead, err := chacha20poly1305.New(secret[:])
	if err != nil {
		return nil, err
	}

	out := make([]byte, 1+NonceSize, Overhead+len(plaintext))
	out[0] = envelopeVersion
	if _, err := io.ReadFull(randReader, out[1:1+NonceSize]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEntropyUnavailable, err)
	}

	return aead.Seal(out, out[1:1+NonceSize], plaintext, out[:1]), nil
}

// Decrypt abre um envelope de Encrypt. Nunca devolve plaintext parcial.
func Decrypt(envelope []byte, secret SharedSecret) ([]byte, error) {
	if len(envelope) < Overhead || envelope[0] != envelopeVersion {
		return nil, ErrAuthenticationFailed
	}
	aead, err := chacha20poly1305.New(secret[:])
	if err != nil {
		return nil, ErrAuthenticationFailed
	}

	pt, err := aead.Open(nil, envelope[1:1+NonceSize], envelope[1+NonceSize:], envelope[:1])
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return pt, nil
}
