package main

import (
	"fmt"
	"time"

	"github.com/mmuslimabdulj/goat-whisper/internal/repository/accounts"
	"github.com/spf13/cobra"
)

func newTokenCmd(app *app) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token <email>",
		Short: "Issue an access token for an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withAccounts(func(repo *accounts.Repository) error {
				found, err := resolve(cmd.Context(), repo, args[0])
				if err != nil {
					return err
				}
				token, err := app.authn.Issue(found[0].Identity(), ttl)
				if err != nil {
					return fmt.Errorf("issue token: %w", err)
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), token)
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to TOKEN_TTL)")
	return cmd
}
