package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"zeroep-backend/internal/crypto"
)

func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd monta a árvore de comandos. Todo material de chave entra e sai em base64.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "keytool",
		Short:        "Client-side key and envelope tool for the zeroep relay",
		SilenceUsage: true,
	}

	root.AddCommand(
		keygenCmd(), deriveCmd(), encryptCmd(), decryptCmd(),
		backupCmd(), restoreCmd(),
		groupSealCmd(), groupOpenCmd(),
		walletNewCmd(), walletSignCmd(), attestCmd(),
	)
	return root
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readInput devolve o valor da flag ou, se vazio, a entrada padrão
func readInput(cmd *cobra.Command, flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	b, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", err
	}
	s := strings.TrimRight(string(b), "\r\n")
	if s == "" {
		return "", fmt.Errorf("no input: pass a flag or pipe data on stdin")
	}
	return s, nil
}

func decodeKey(name, value string) ([]byte, error) {
	if value == "" {
		return nil, fmt.Errorf("--%s is required", name)
	}
	b, err := crypto.FromB64(value)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", name, err)
	}
	return b, nil
}
