package auth

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"

	"zeroep-backend/internal/models"
)

var ErrInvalidProof = errors.New("prova de identidade inválida")

// Proof é a atestação emitida por um verificador externo de identidade
type Proof struct {
	SubjectHash string `json:"subjectHash" validate:"required"`
	Signature   string `json:"signature" validate:"required"`
}

// ProofVerifier é a capacidade verifyProof(proof) -> bool
type ProofVerifier interface {
	VerifyProof(identity models.Identity, proof Proof) error
}

// AttestationVerifier confia em um único atestador Ed25519 que assina
// identity || subjectHash.
type AttestationVerifier struct {
	attester ed25519.PublicKey
}

// NewAttestationVerifier recebe a chave do atestador em base64. Vazia
// retorna (nil, nil): provas desligadas.
func NewAttestationVerifier(attesterKeyB64 string) (*AttestationVerifier, error) {
	if attesterKeyB64 == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(attesterKeyB64)
	if err != nil || len(key) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("chave do atestador malformada")
	}
	return &AttestationVerifier{attester: key}, nil
}

func (v *AttestationVerifier) VerifyProof(identity models.Identity, proof Proof) error {
	subject, err := base64.StdEncoding.DecodeString(proof.SubjectHash)
	if err != nil || len(subject) == 0 {
		return ErrInvalidProof
	}
	sig, err := base64.StdEncoding.DecodeString(proof.Signature)
	if err != nil {
		return ErrInvalidProof
	}
	if !ed25519.Verify(v.attester, attestationMessage(identity, subject), sig) {
		return ErrInvalidProof
	}
	return nil
}

func attestationMessage(identity models.Identity, subject []byte) []byte {
	msg := make([]byte, 0, len(identity)+len(subject))
	msg = append(msg, identity...)
	return append(msg, subject...)
}

// Attest assina uma prova como o atestador faria. Usado em testes e no keytool.
func Attest(attester ed25519.PrivateKey, identity models.Identity, subject []byte) Proof {
	return Proof{
		SubjectHash: base64.StdEncoding.EncodeToString(subject),
		Signature:   base64.StdEncoding.EncodeToString(ed25519.Sign(attester, attestationMessage(identity, subject))),
	}
}
