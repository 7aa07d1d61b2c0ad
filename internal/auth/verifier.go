package auth

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"zeroep-backend/internal/models"
)

var ErrSignatureMismatch = errors.New("assinatura não confere")

// SignatureVerifier é a capacidade externa de verificar a assinatura de uma
// carteira. Cada esquema decide como a Identity deriva da chave pública.
type SignatureVerifier interface {
	Scheme() string
	Verify(identity models.Identity, message string, signature string) error
}

// NewSignatureVerifier escolhe o esquema na construção; nome desconhecido é erro aqui
func NewSignatureVerifier(scheme string) (SignatureVerifier, error) {
	switch strings.ToLower(strings.TrimSpace(scheme)) {
	case "ed25519":
		return Ed25519Verifier{}, nil
	default:
		return nil, fmt.Errorf("esquema de assinatura desconhecido: %q", scheme)
	}
}

// SignedMessage é o objeto que a carteira devolve depois de assinar.
// Todos os campos em base64.
type SignedMessage struct {
	Signature string `json:"signature"`
	PublicKey string `json:"publicKey"`
	Signed    string `json:"signed"`
}

// Ed25519Verifier aceita carteiras cujo endereço é
// 0x + hex(sha256(pub)[12:]).
type Ed25519Verifier struct{}

func (Ed25519Verifier) Scheme() string { return "ed25519" }

func (Ed25519Verifier) Verify(identity models.Identity, message string, signature string) error {
	var sm SignedMessage
	if err := json.Unmarshal([]byte(signature), &sm); err != nil {
		return fmt.Errorf("%w: objeto assinado malformado", ErrSignatureMismatch)
	}

	pub, err := base64.StdEncoding.DecodeString(sm.PublicKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: chave pública malformada", ErrSignatureMismatch)
	}
	sig, err := base64.StdEncoding.DecodeString(sm.Signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("%w: assinatura malformada", ErrSignatureMismatch)
	}
	signed, err := base64.StdEncoding.DecodeString(sm.Signed)
	if err != nil {
		return fmt.Errorf("%w: mensagem malformada", ErrSignatureMismatch)
	}

	// A chave tem que pertencer à identidade e ter assinado exatamente o desafio
	if AddressFromPublicKey(pub) != identity {
		return fmt.Errorf("%w: chave não pertence à identidade", ErrSignatureMismatch)
	}
	if string(signed) != message {
		return fmt.Errorf("%w: mensagem assinada difere do desafio", ErrSignatureMismatch)
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), signed, sig) {
		return ErrSignatureMismatch
	}
	return nil
}

// AddressFromPublicKey deriva o endereço de carteira de uma chave Ed25519
func AddressFromPublicKey(pub []byte) models.Identity {
	sum := sha256.Sum256(pub)
	return models.Identity("0x" + hex.EncodeToString(sum[12:]))
}

// SignWithEd25519 produz o objeto que uma carteira Ed25519 enviaria.
// Usado pelo keytool e pelos testes.
func SignWithEd25519(priv ed25519.PrivateKey, message string) (string, error) {
	sm := SignedMessage{
		Signature: base64.StdEncoding.EncodeToString(ed25519.Sign(priv, []byte(message))),
		PublicKey: base64.StdEncoding.EncodeToString(priv.Public().(ed25519.PublicKey)),
		Signed:    base64.StdEncoding.EncodeToString([]byte(message)),
	}
	b, err := json.Marshal(sm)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
