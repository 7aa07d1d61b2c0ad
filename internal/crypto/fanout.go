package crypto

import (
	"encoding/json"
	"errors"
)

const groupEnvelopeVersion = 1

var ErrNotARecipient = errors.New("crypto: envelope carries nothing for this recipient")

// GroupEnvelope leva um envelope por destinatário, cada um com o segredo do
// par remetente/destinatário. Campos []byte viajam em base64.
type GroupEnvelope struct {
	Version    int               `json:"v"`
	Sender     PublicKey         `json:"sender"`
	Recipients map[string][]byte `json:"recipients"`
}

// SealForRecipients cifra plaintext uma vez por destinatário com
// DeriveChannelSecret(senderPriv, recipientPub, channelID).
func SealForRecipients(senderPriv PrivateKey, senderPub PublicKey, recipients map[string]PublicKey, channelID string, plaintext []byte) (*GroupEnvelope, error) {
	if len(recipients) == 0 {
		return nil, errors.New("crypto: no recipients")
	}

	env := &GroupEnvelope{
		Version:    groupEnvelopeVersion,
		Sender:     senderPub,
		Recipients: make(map[string][]byte, len(recipients)),
	}
	for id, pub := range recipients {
		secret, err := DeriveChannelSecret(senderPriv, pub, channelID)
		if err != nil {
			return nil, err
		}
		ct, err := Encrypt(plaintext, secret)
		if err != nil {
			return nil, err
		}
		env.Recipients[id] = ct
	}
	return env, nil
}

// Open decifra a entrada endereçada a self
func (g *GroupEnvelope) Open(self string, own PrivateKey, channelID string) ([]byte, error) {
	if g.Version != groupEnvelopeVersion {
		return nil, ErrAuthenticationFailed
	}
	ct, ok := g.Recipients[self]
	if !ok {
		return nil, ErrNotARecipient
	}
	secret, err := DeriveChannelSecret(own, g.Sender, channelID)
	if err != nil {
		return nil, err
	}
	return Decrypt(ct, secret)
}

// Encode gera a string opaca enviada em send-message
func (g *GroupEnvelope) Encode() (string, error) {
	b, err := json.Marshal(g)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func DecodeGroupEnvelope(s string) (*GroupEnvelope, error) {
	var g GroupEnvelope
	if err := json.Unmarshal([]byte(s), &g); err != nil {
		return nil, err
	}
	return &g, nil
}
