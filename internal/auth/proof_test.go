package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttestationVerifier(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	v, err := NewAttestationVerifier(base64.StdEncoding.EncodeToString(pub))
	require.NoError(t, err)
	require.NotNil(t, v)

	proof := Attest(priv, "0xabc", []byte("subject-hash"))
	assert.NoError(t, v.VerifyProof("0xabc", proof))
	assert.ErrorIs(t, v.VerifyProof("0xdef", proof), ErrInvalidProof)

	proof.SubjectHash = base64.StdEncoding.EncodeToString([]byte("other"))
	assert.ErrorIs(t, v.VerifyProof("0xabc", proof), ErrInvalidProof)

	assert.ErrorIs(t, v.VerifyProof("0xabc", Proof{SubjectHash: "!!", Signature: "!!"}), ErrInvalidProof)
}

func TestNewAttestationVerifier_Config(t *testing.T) {
	v, err := NewAttestationVerifier("")
	assert.NoError(t, err)
	assert.Nil(t, v)

	_, err = NewAttestationVerifier("bm90LWEta2V5")
	assert.Error(t, err)
}
