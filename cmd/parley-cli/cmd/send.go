package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/nfrund/parley/internal/client"
	"github.com/spf13/cobra"
)

var (
	sendChatID    string
	sendRecipient string
)

var sendCmd = &cobra.Command{
	Use:   "send [text...]",
	Short: "Send a message into an existing chat or start a new one",
	Long: `Send persists a message and pushes the fan-out event so other
connected members see it immediately.

With --chat the message goes into an existing chat. With --to a direct
chat with that user is created (or reused) and the message becomes its
first (or next) entry.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tok := resolveToken()
		if tok == "" || userID == "" {
			return fmt.Errorf("--token (or PARLEY_TOKEN) and --user-id are required")
		}
		if (sendChatID == "") == (sendRecipient == "") {
			return fmt.Errorf("exactly one of --chat or --to is required")
		}
		text := strings.Join(args, " ")

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		api := client.NewAPI(serverURL, tok)
		rt, err := client.Connect(ctx, websocketURL(serverURL), api, userID, username, tok)
		if err != nil {
			return err
		}
		defer rt.Close()
		go rt.Run(ctx)

		if sendChatID != "" {
			if err := rt.SendChatMessage(ctx, sendChatID, text); err != nil {
				return err
			}
			fmt.Printf("Sent to chat %s\n", sendChatID)
			return nil
		}

		if err := rt.StartChat(ctx, sendRecipient, text); err != nil {
			return err
		}
		fmt.Printf("Sent to user %s\n", sendRecipient)
		return nil
	},
}

func init() {
	sendCmd.Flags().StringVar(&sendChatID, "chat", "", "target chat id")
	sendCmd.Flags().StringVar(&sendRecipient, "to", "", "target user id for a direct chat")
	rootCmd.AddCommand(sendCmd)
}
