package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "randomtalk",
	Short: "Anonymous random video chat: matchmaking queue and WebRTC signaling relay",
	Long: `randomtalk pairs anonymous participants through matchmaking pools
and relays SDP offers, answers and ICE candidates between the pair.
Media never passes through the server.

Configuration is read from environment variables, see "migrate" for schema setup.`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		runApp()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// cobra уже напечатал ошибку
		os.Exit(1)
	}
}
