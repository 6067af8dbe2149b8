package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	token     string
	userID    string
	username  string
)

var rootCmd = &cobra.Command{
	Use:   "parley-cli",
	Short: "Parley CLI tool",
	Long: `Parley CLI is a command-line client for a Parley chat server.

Available commands:
  connect    Open a live connection and stream chat list updates
  send       Send a message into an existing chat
  search     Find users by username

Use "parley-cli [command] --help" for more information about a specific command.`,
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:3000", "Parley server base URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "access token (falls back to PARLEY_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&userID, "user-id", "", "authenticated user id")
	rootCmd.PersistentFlags().StringVar(&username, "username", "", "authenticated username")
}

// resolveToken prefers the flag and falls back to the environment.
func resolveToken() string {
	if token != "" {
		return token
	}
	return os.Getenv("PARLEY_TOKEN")
}
