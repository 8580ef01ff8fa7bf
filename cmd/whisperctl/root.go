package main

import "github.com/spf13/cobra"

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "whisperctl",
		Short:         "Developer tooling for goat-whisper",
		Long:          "whisperctl seeds test accounts, mints access tokens and inspects stored conversations. Run it against the same environment as the server while the server is stopped.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	app, err := wireApp()
	if err != nil {
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
			return err
		}
		return rootCmd
	}

	rootCmd.AddCommand(
		newSeedCmd(app),
		newTokenCmd(app),
		newHistoryCmd(app),
		newUnreadCmd(app),
		newMessageCmd(app),
	)

	return rootCmd
}
