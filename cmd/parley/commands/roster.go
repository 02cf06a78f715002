package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func rosterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "roster",
		Short: "Print the current participant snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			participants, err := queries.Roster(cmd.Context())
			if err != nil {
				return err
			}
			if len(participants) == 0 {
				fmt.Println("room is empty")
				return nil
			}
			for _, p := range participants {
				fmt.Printf("%-16s %s\n", p.Username, p.Fingerprint)
			}
			return nil
		},
	}
}
