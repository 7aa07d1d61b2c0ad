package commands

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/spf13/cobra"

	"zeroep-backend/internal/auth"
	"zeroep-backend/internal/crypto"
	"zeroep-backend/internal/models"
)

// walletNewCmd cria uma carteira Ed25519 de desenvolvimento
func walletNewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "wallet-new",
		Short: "Create a development Ed25519 wallet",
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, priv, err := ed25519.GenerateKey(rand.Reader)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]string{
				"identity":   auth.AddressFromPublicKey(pub).String(),
				"publicKey":  crypto.B64(pub),
				"privateKey": crypto.B64(priv),
			})
		},
	}
}

func walletKey(value string) (ed25519.PrivateKey, error) {
	b, err := decodeKey("key", value)
	if err != nil {
		return nil, err
	}
	if len(b) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("--key: want %d bytes, got %d", ed25519.PrivateKeySize, len(b))
	}
	return ed25519.PrivateKey(b), nil
}

// walletSignCmd assina o texto do desafio de login
func walletSignCmd() *cobra.Command {
	var key, message string
	cmd := &cobra.Command{
		Use:   "wallet-sign",
		Short: "Sign a login challenge; prints the signature to send to /v1/auth/verify",
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := readInput(cmd, message)
			if err != nil {
				return err
			}
			priv, err := walletKey(key)
			if err != nil {
				return err
			}
			sig, err := auth.SignWithEd25519(priv, msg)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sig)
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "wallet private key (base64)")
	cmd.Flags().StringVarP(&message, "message", "m", "", "challenge text (default: stdin)")
	return cmd
}

func attestCmd() *cobra.Command {
	var key, identity, subject string
	cmd := &cobra.Command{
		Use:   "attest",
		Short: "Issue an identity proof as the configured attester",
		RunE: func(cmd *cobra.Command, args []string) error {
			if identity == "" || subject == "" {
				return fmt.Errorf("--identity and --subject are required")
			}
			priv, err := walletKey(key)
			if err != nil {
				return err
			}
			return printJSON(cmd, auth.Attest(priv, models.NormalizeIdentity(identity), []byte(subject)))
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "attester private key (base64)")
	cmd.Flags().StringVar(&identity, "identity", "", "identity being attested")
	cmd.Flags().StringVar(&subject, "subject", "", "subject hash or reference")
	return cmd
}
