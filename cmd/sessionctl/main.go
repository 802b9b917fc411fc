// Command sessionctl drives training sessions from a terminal: start, pause,
// resume and finish a session, and watch the client, trainer or admin views.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	offline    bool
	roleFlag   string
)

var rootCmd = &cobra.Command{
	Use:   "sessionctl",
	Short: "Track training sessions from the terminal",
	Long: `sessionctl talks to the session tracker API as one user.

Configuration is read from config.yaml in --config and from CLIENT_* environment
variables. With --offline every command runs against a local sample dataset.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", ".", "directory holding config.yaml")
	rootCmd.PersistentFlags().BoolVar(&offline, "offline", false, "use a local sample dataset instead of the API")
	rootCmd.PersistentFlags().StringVar(&roleFlag, "role", "", "override client.role (client, trainer or admin)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
