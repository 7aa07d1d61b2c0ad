package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"zeroep-backend/internal/crypto"
)

type keyFlags struct {
	private string
	peer    string
	channel string
}

func (f *keyFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.private, "private", "", "own private key (base64)")
	cmd.Flags().StringVar(&f.peer, "peer", "", "peer public key (base64)")
	cmd.Flags().StringVar(&f.channel, "channel", "", "channel id bound into the derived secret")
}

func (f *keyFlags) secret() (crypto.SharedSecret, error) {
	priv, err := decodeKey("private", f.private)
	if err != nil {
		return crypto.SharedSecret{}, err
	}
	defer crypto.Wipe(priv)
	peer, err := decodeKey("peer", f.peer)
	if err != nil {
		return crypto.SharedSecret{}, err
	}
	return crypto.DeriveChannelSecret(priv, peer, f.channel)
}

func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a per-channel P-256 key pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			kp, err := crypto.GenerateKeyPair()
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]string{
				"publicKey":  crypto.B64(kp.PublicKey),
				"privateKey": crypto.B64(kp.PrivateKey),
			})
		},
	}
}

func deriveCmd() *cobra.Command {
	var f keyFlags
	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Derive the shared secret with a peer",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := f.secret()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), crypto.B64(s.Slice()))
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func encryptCmd() *cobra.Command {
	var f keyFlags
	var message string
	cmd := &cobra.Command{
		Use:   "encrypt",
		Short: "Seal a message for a peer; prints the envelope in base64",
		RunE: func(cmd *cobra.Command, args []string) error {
			plain, err := readInput(cmd, message)
			if err != nil {
				return err
			}
			s, err := f.secret()
			if err != nil {
				return err
			}
			env, err := crypto.Encrypt([]byte(plain), s)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), crypto.B64(env))
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().StringVarP(&message, "message", "m", "", "plaintext (default: stdin)")
	return cmd
}

func decryptCmd() *cobra.Command {
	var f keyFlags
	var envelope string
	cmd := &cobra.Command{
		Use:   "decrypt",
		Short: "Open an envelope from a peer",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := readInput(cmd, envelope)
			if err != nil {
				return err
			}
			raw, err := crypto.FromB64(strings.TrimSpace(in))
			if err != nil {
				return fmt.Errorf("envelope: %w", err)
			}
			s, err := f.secret()
			if err != nil {
				return err
			}
			plain, err := crypto.Decrypt(raw, s)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(plain))
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().StringVarP(&envelope, "envelope", "e", "", "base64 envelope (default: stdin)")
	return cmd
}

func backupCmd() *cobra.Command {
	var private, passphrase string
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Seal a private key under a passphrase for PUT /v1/channel/{id}/key",
		RunE: func(cmd *cobra.Command, args []string) error {
			if passphrase == "" {
				return fmt.Errorf("--passphrase is required")
			}
			priv, err := decodeKey("private", private)
			if err != nil {
				return err
			}
			defer crypto.Wipe(priv)
			sealed, err := crypto.SealPrivateKey(passphrase, priv)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), crypto.B64(sealed))
			return nil
		},
	}
	cmd.Flags().StringVar(&private, "private", "", "private key (base64)")
	cmd.Flags().StringVarP(&passphrase, "passphrase", "p", "", "backup passphrase")
	return cmd
}

func restoreCmd() *cobra.Command {
	var backup, passphrase string
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Recover a private key from its sealed backup",
		RunE: func(cmd *cobra.Command, args []string) error {
			if passphrase == "" {
				return fmt.Errorf("--passphrase is required")
			}
			sealed, err := decodeKey("backup", backup)
			if err != nil {
				return err
			}
			priv, err := crypto.OpenPrivateKey(passphrase, sealed)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), crypto.B64(priv))
			return nil
		},
	}
	cmd.Flags().StringVar(&backup, "backup", "", "sealed backup (base64)")
	cmd.Flags().StringVarP(&passphrase, "passphrase", "p", "", "backup passphrase")
	return cmd
}

func groupSealCmd() *cobra.Command {
	var private, public, channel, message string
	var recipients []string
	cmd := &cobra.Command{
		Use:   "group-seal",
		Short: "Fan a message out to several recipients (identity=publicKey)",
		RunE: func(cmd *cobra.Command, args []string) error {
			plain, err := readInput(cmd, message)
			if err != nil {
				return err
			}
			priv, err := decodeKey("private", private)
			if err != nil {
				return err
			}
			defer crypto.Wipe(priv)
			pub, err := decodeKey("public", public)
			if err != nil {
				return err
			}

			keys := make(map[string]crypto.PublicKey, len(recipients))
			for _, r := range recipients {
				id, b64, ok := strings.Cut(r, "=")
				if !ok || id == "" {
					return fmt.Errorf("--recipient %q: want identity=publicKey", r)
				}
				k, err := crypto.FromB64(b64)
				if err != nil {
					return fmt.Errorf("--recipient %s: %w", id, err)
				}
				keys[id] = k
			}

			env, err := crypto.SealForRecipients(priv, pub, keys, channel, []byte(plain))
			if err != nil {
				return err
			}
			out, err := env.Encode()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&private, "private", "", "own private key (base64)")
	cmd.Flags().StringVar(&public, "public", "", "own public key (base64)")
	cmd.Flags().StringVar(&channel, "channel", "", "channel id")
	cmd.Flags().StringArrayVarP(&recipients, "recipient", "r", nil, "identity=publicKey, repeatable")
	cmd.Flags().StringVarP(&message, "message", "m", "", "plaintext (default: stdin)")
	return cmd
}

func groupOpenCmd() *cobra.Command {
	var self, private, channel, envelope string
	cmd := &cobra.Command{
		Use:   "group-open",
		Short: "Open the entry addressed to you in a group envelope",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := readInput(cmd, envelope)
			if err != nil {
				return err
			}
			env, err := crypto.DecodeGroupEnvelope(in)
			if err != nil {
				return fmt.Errorf("envelope: %w", err)
			}
			priv, err := decodeKey("private", private)
			if err != nil {
				return err
			}
			defer crypto.Wipe(priv)
			plain, err := env.Open(self, priv, channel)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(plain))
			return nil
		},
	}
	cmd.Flags().StringVar(&self, "self", "", "own identity")
	cmd.Flags().StringVar(&private, "private", "", "own private key (base64)")
	cmd.Flags().StringVar(&channel, "channel", "", "channel id")
	cmd.Flags().StringVarP(&envelope, "envelope", "e", "", "group envelope JSON (default: stdin)")
	return cmd
}
