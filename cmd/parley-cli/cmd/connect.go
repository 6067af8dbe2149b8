package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nfrund/parley/internal/client"
	"github.com/spf13/cobra"
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Open a live connection and stream chat list updates",
	Long: `Connect opens a WebSocket connection to the server and prints the
chat list every time a push event changes it. Interrupt to disconnect.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tok := resolveToken()
		if tok == "" || userID == "" {
			return fmt.Errorf("--token (or PARLEY_TOKEN) and --user-id are required")
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		api := client.NewAPI(serverURL, tok)
		rt, err := client.Connect(ctx, websocketURL(serverURL), api, userID, username, tok)
		if err != nil {
			return err
		}
		defer rt.Close()

		rt.OnChange(func(s client.Snapshot) {
			fmt.Printf("--- %d chats ---\n", len(s.Chats))
			for _, c := range s.Chats {
				preview := "(no messages)"
				if c.LastMessage != nil {
					preview = c.LastMessage.Text
				}
				fmt.Printf("  %-20s %s\n", c.DisplayName, preview)
			}
		})

		go func() {
			quit := make(chan os.Signal, 1)
			signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
			<-quit
			cancel()
		}()

		if err := rt.Run(ctx); err != nil && err != context.Canceled {
			return err
		}
		return nil
	},
}

// websocketURL turns the HTTP base URL into the ws endpoint.
func websocketURL(base string) string {
	ws := strings.Replace(base, "https://", "wss://", 1)
	ws = strings.Replace(ws, "http://", "ws://", 1)
	return ws + "/ws"
}

func init() {
	rootCmd.AddCommand(connectCmd)
}
