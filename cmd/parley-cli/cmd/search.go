package cmd

import (
	"fmt"

	"github.com/nfrund/parley/internal/client"
	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Find users by username",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tok := resolveToken()
		if tok == "" {
			return fmt.Errorf("--token (or PARLEY_TOKEN) is required")
		}

		api := client.NewAPI(serverURL, tok)
		users, err := api.SearchUsers(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if len(users) == 0 {
			fmt.Println("No users found.")
			return nil
		}
		for _, u := range users {
			fmt.Printf("%-24s %s\n", u.ID, u.Username)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)
}
