package crypto

import (
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// SecretSize é o tamanho de toda chave simétrica derivada
	SecretSize = 32

	kdfInfo = "zeroep/ecdh/v1"
)

var (
	ErrEntropyUnavailable = errors.New("crypto: secure random source unavailable")
	ErrInvalidPublicKey   = errors.New("crypto: invalid public key")
	ErrInvalidPrivateKey  = errors.New("crypto: invalid private key")
)

// randReader é trocado nos testes para simular falta de entropia
var randReader io.Reader = rand.Reader

// PublicKey é um ponto P-256 SEC1 não comprimido (65 bytes)
type PublicKey []byte

// PrivateKey é um escalar P-256 de 32 bytes
type PrivateKey []byte

// KeyPair é gerado uma vez por participante por canal
type KeyPair struct {
	PublicKey  PublicKey
	PrivateKey PrivateKey
}

// SharedSecret é a saída HKDF de um acordo ECDH
type SharedSecret [SecretSize]byte

func (s SharedSecret) Slice() []byte { return s[:] }

func GenerateKeyPair() (KeyPair, error) {
	priv, err := ecdh.P256().GenerateKey(randReader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("%w: %v", ErrEntropyUnavailable, err)
	}
	return KeyPair{
		PublicKey:  priv.PublicKey().Bytes(),
		PrivateKey: priv.Bytes(),
	}, nil
}

// ParsePublicKey rejeita tudo que não é ponto válido de P-256, inclusive o
// ponto no infinito.
func ParsePublicKey(b []byte) (*ecdh.PublicKey, error) {
	pub, err := ecdh.P256().NewPublicKey(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return pub, nil
}

// DeriveSharedSecret calcula ECDH(own, peer) e reduz com HKDF. Os dois lados
// chegam ao mesmo segredo com a própria chave privada e a pública do outro.
func DeriveSharedSecret(own PrivateKey, peer PublicKey) (SharedSecret, error) {
	return DeriveChannelSecret(own, peer, "")
}

// DeriveChannelSecret é DeriveSharedSecret ligado ao id do canal: o mesmo par
// de chaves dá segredos diferentes em canais diferentes.
func DeriveChannelSecret(own PrivateKey, peer PublicKey, channelID string) (SharedSecret, error) {
	var out SharedSecret

	priv, err := ecdh.P256().NewPrivateKey(own)
	if err != nil {
		return out, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	pub, err := ParsePublicKey(peer)
	if err != nil {
		return out, err
	}

	raw, err := priv.ECDH(pub)
	if err != nil {
		return out, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	defer Wipe(raw)

	r := hkdf.New(sha256.New, raw, nil, []byte(kdfInfo+"|"+channelID))
	if _, err := io.ReadFull(r, out[:]); err != nil {
		return SharedSecret{}, err
	}
	return out, nil
}
