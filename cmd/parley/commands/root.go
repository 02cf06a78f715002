package commands

import (
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"parley/internal/relay"
)

var (
	relayURL string

	queries *relay.QueryClient
)

// Execute runs the CLI.
func Execute() error {
	root := &cobra.Command{
		Use:   "parley",
		Short: "End-to-end encrypted room chat",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			queries = relay.NewQueryClient(relayURL, &http.Client{Timeout: 10 * time.Second})
		},
	}

	root.PersistentFlags().StringVar(&relayURL, "relay", "http://127.0.0.1:8080", "relay base URL")

	root.AddCommand(joinCmd(), rosterCmd(), logsCmd())
	return root.Execute()
}
