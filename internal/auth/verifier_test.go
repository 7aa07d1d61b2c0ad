package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"strings"
	"testing"

	"zeroep-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWallet(t *testing.T) (ed25519.PrivateKey, models.Identity) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return priv, AddressFromPublicKey(pub)
}

func TestNewSignatureVerifier(t *testing.T) {
	v, err := NewSignatureVerifier("ed25519")
	require.NoError(t, err)
	assert.Equal(t, "ed25519", v.Scheme())

	_, err = NewSignatureVerifier("secp256k1-but-misspelled")
	assert.Error(t, err)
	_, err = NewSignatureVerifier("")
	assert.Error(t, err)
}

func TestAddressFromPublicKey(t *testing.T) {
	_, id := newWallet(t)
	assert.True(t, strings.HasPrefix(id.String(), "0x"))
	assert.Len(t, id.String(), 42)
	assert.Equal(t, models.NormalizeIdentity(id.String()), id)
}

func TestEd25519Verifier(t *testing.T) {
	priv, id := newWallet(t)
	otherPriv, otherID := newWallet(t)
	v := Ed25519Verifier{}
	msg := "zeroep login\nidentity: " + id.String()

	sig, err := SignWithEd25519(priv, msg)
	require.NoError(t, err)
	assert.NoError(t, v.Verify(id, msg, sig))

	// outra mensagem
	assert.ErrorIs(t, v.Verify(id, msg+"x", sig), ErrSignatureMismatch)

	// outra identidade
	assert.ErrorIs(t, v.Verify(otherID, msg, sig), ErrSignatureMismatch)

	// chave correta para a identidade, mas assinatura de outra carteira
	forged, err := SignWithEd25519(otherPriv, msg)
	require.NoError(t, err)
	var sm SignedMessage
	require.NoError(t, json.Unmarshal([]byte(forged), &sm))
	var good SignedMessage
	require.NoError(t, json.Unmarshal([]byte(sig), &good))
	sm.PublicKey = good.PublicKey
	b, err := json.Marshal(sm)
	require.NoError(t, err)
	assert.ErrorIs(t, v.Verify(id, msg, string(b)), ErrSignatureMismatch)

	for _, garbage := range []string{"", "{}", "not json", `{"signature":"!!","publicKey":"!!","signed":"!!"}`} {
		assert.ErrorIs(t, v.Verify(id, msg, garbage), ErrSignatureMismatch)
	}
}
