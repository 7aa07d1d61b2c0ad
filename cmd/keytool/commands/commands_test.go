package commands

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"zeroep-backend/internal/auth"
	"zeroep-backend/internal/crypto"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return strings.TrimSpace(out.String()), err
}

func keygen(t *testing.T) (pub, priv string) {
	t.Helper()
	out, err := run(t, "", "keygen")
	require.NoError(t, err)
	var kp map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &kp))
	return kp["publicKey"], kp["privateKey"]
}

func TestEncryptDecrypt(t *testing.T) {
	aPub, aPriv := keygen(t)
	bPub, bPriv := keygen(t)

	env, err := run(t, "", "encrypt", "--private", aPriv, "--peer", bPub, "--channel", "c1", "-m", "hi bob")
	require.NoError(t, err)

	plain, err := run(t, env, "decrypt", "--private", bPriv, "--peer", aPub, "--channel", "c1")
	require.NoError(t, err)
	assert.Equal(t, "hi bob", plain)

	_, err = run(t, "", "decrypt", "--private", bPriv, "--peer", aPub, "--channel", "c2", "-e", env)
	assert.ErrorIs(t, err, crypto.ErrAuthenticationFailed)
}

func TestDeriveIsSymmetric(t *testing.T) {
	aPub, aPriv := keygen(t)
	bPub, bPriv := keygen(t)

	ab, err := run(t, "", "derive", "--private", aPriv, "--peer", bPub)
	require.NoError(t, err)
	ba, err := run(t, "", "derive", "--private", bPriv, "--peer", aPub)
	require.NoError(t, err)
	assert.Equal(t, ab, ba)

	_, err = run(t, "", "derive", "--private", aPriv)
	assert.Error(t, err)
}

func TestBackupRestore(t *testing.T) {
	_, priv := keygen(t)

	sealed, err := run(t, "", "backup", "--private", priv, "-p", "hunter22")
	require.NoError(t, err)

	restored, err := run(t, "", "restore", "--backup", sealed, "-p", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, priv, restored)

	_, err = run(t, "", "restore", "--backup", sealed, "-p", "wrong")
	assert.Error(t, err)
}

func TestGroupSealOpen(t *testing.T) {
	sPub, sPriv := keygen(t)
	bPub, bPriv := keygen(t)
	cPub, _ := keygen(t)

	env, err := run(t, "", "group-seal", "--private", sPriv, "--public", sPub, "--channel", "g",
		"-r", "0xbob="+bPub, "-r", "0xcarol="+cPub, "-m", "team")
	require.NoError(t, err)

	plain, err := run(t, env, "group-open", "--self", "0xbob", "--private", bPriv, "--channel", "g")
	require.NoError(t, err)
	assert.Equal(t, "team", plain)

	_, err = run(t, env, "group-open", "--self", "0xdave", "--private", bPriv, "--channel", "g")
	assert.ErrorIs(t, err, crypto.ErrNotARecipient)

	_, err = run(t, "", "group-seal", "--private", sPriv, "--public", sPub, "-r", "nokey", "-m", "x")
	assert.Error(t, err)
}

func TestWalletSignVerifies(t *testing.T) {
	out, err := run(t, "", "wallet-new")
	require.NoError(t, err)
	var w map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &w))

	const challenge = "zeroep login\nidentity: x\nnonce: 00\nexpires: 2030-01-01T00:00:00Z"
	sig, err := run(t, challenge, "wallet-sign", "--key", w["privateKey"])
	require.NoError(t, err)

	verifier, err := auth.NewSignatureVerifier("ed25519")
	require.NoError(t, err)
	id := auth.AddressFromPublicKey(mustB64(t, w["publicKey"]))
	assert.Equal(t, w["identity"], id.String())
	assert.NoError(t, verifier.Verify(id, challenge, sig))
}

func TestAttest(t *testing.T) {
	out, err := run(t, "", "wallet-new")
	require.NoError(t, err)
	var w map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &w))

	out, err = run(t, "", "attest", "--key", w["privateKey"], "--identity", "0xABC", "--subject", "kyc-123")
	require.NoError(t, err)
	var proof auth.Proof
	require.NoError(t, json.Unmarshal([]byte(out), &proof))

	v, err := auth.NewAttestationVerifier(w["publicKey"])
	require.NoError(t, err)
	assert.NoError(t, v.VerifyProof("0xabc", proof))
}

func mustB64(t *testing.T, s string) []byte {
	t.Helper()
	b, err := crypto.FromB64(s)
	require.NoError(t, err)
	return b
}
