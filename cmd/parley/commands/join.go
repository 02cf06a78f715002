package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"parley/internal/client"
)

func joinCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "join <username>",
		Short: "Join the room and chat from stdin",
		Long: "Join connects to the relay, generates a fresh key pair for this session,\n" +
			"registers the username, and then reads chat lines from stdin. Every line is\n" +
			"sealed for the participants present at the moment you hit enter.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(relayURL)

			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()
			if err := c.Join(ctx, args[0]); err != nil {
				return err
			}
			defer c.Close()

			fmt.Printf("joined as %s\n", c.Username())
			fmt.Printf("your fingerprint: %s\n", c.Fingerprint())
			for _, p := range c.Roster() {
				fmt.Printf("  in room: %-16s %s\n", p.Username, p.Fingerprint)
			}

			done := make(chan struct{})
			go printEvents(c, done)

			scanner := bufio.NewScanner(os.Stdin)
		scan:
			for scanner.Scan() {
				select {
				case <-done:
					break scan
				default:
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				if line == "/quit" {
					break
				}
				if err := c.Send([]byte(line)); err != nil {
					fmt.Fprintln(os.Stderr, "send failed:", err)
				}
			}
			return c.Leave()
		},
	}
	return cmd
}

// printEvents drains session events to the terminal until the session ends.
func printEvents(c *client.Client, done chan<- struct{}) {
	defer close(done)
	for {
		ev, err := c.Next()
		if err != nil {
			if !errors.Is(err, client.ErrSessionClosed) {
				fmt.Fprintln(os.Stderr, "connection lost:", err)
			}
			return
		}
		switch e := ev.(type) {
		case client.Message:
			fmt.Printf("[%s] %s\n", e.From, e.Plaintext)
		case client.NotAddressed:
			fmt.Printf("(message from %s predates your join)\n", e.From)
		case client.DecryptFailed:
			fmt.Fprintf(os.Stderr, "could not decrypt a message from %s\n", e.From)
		case client.PeerJoined:
			fmt.Printf("* %s joined (%s)\n", e.Username, e.Fingerprint)
		case client.PeerLeft:
			fmt.Printf("* %s left\n", e.Username)
		case client.DeliveryError:
			fmt.Fprintln(os.Stderr, "delivery failed:", e.Message)
		}
	}
}
