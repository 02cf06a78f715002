package commands

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"parley/internal/audit"
)

func logsCmd() *cobra.Command {
	var (
		token     string
		logKeyB64 string
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Fetch the relay's ciphertext audit log",
		Long: "Logs fetches the append-only audit trail: sender, ciphertext, nonce, and\n" +
			"timestamp per relayed message, never key material. With --log-key and a\n" +
			"relay running the sealed audit backend, entries are unsealed locally.",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := queries.AuditEntries(cmd.Context(), token)
			if err != nil {
				return err
			}

			out := json.NewEncoder(os.Stdout)
			out.SetIndent("", "  ")

			if logKeyB64 == "" {
				return out.Encode(entries)
			}

			key, err := base64.StdEncoding.DecodeString(logKeyB64)
			if err != nil {
				return fmt.Errorf("log key: %w", err)
			}
			records, err := audit.Unseal(key, entries)
			if err != nil {
				return err
			}
			return out.Encode(records)
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "export token, if the relay requires one")
	cmd.Flags().StringVar(&logKeyB64, "log-key", "", "base64 log key to unseal sealed entries")
	return cmd
}
