package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/mmuslimabdulj/goat-whisper/internal/domain"
	"github.com/mmuslimabdulj/goat-whisper/internal/repository/accounts"
	"github.com/mmuslimabdulj/goat-whisper/internal/repository/messages"
	"github.com/spf13/cobra"
)

func newHistoryCmd(app *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <email> <email>",
		Short: "Print the decrypted conversation between two accounts",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var found []*accounts.Account
			err := app.withAccounts(func(repo *accounts.Repository) error {
				var err error
				found, err = resolve(cmd.Context(), repo, args[0], args[1])
				return err
			})
			if err != nil {
				return err
			}
			emails := map[string]string{found[0].ID: found[0].Email, found[1].ID: found[1].Email}

			return app.withMessages(func(store *messages.Store) error {
				msgs, err := store.Conversation(cmd.Context(), found[0].ID, found[1].ID, limit)
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				for _, m := range msgs {
					content, err := app.cipher.Decrypt(m.ContentEncrypted)
					if err != nil {
						content = "<undecryptable>"
					}
					status := "unread"
					if m.IsRead {
						status = "read"
					}
					_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
						m.CreatedAt.UTC().Format(time.RFC3339), emails[m.SenderID], m.ContentType, status, content)
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "most recent messages to show, 0 for all")
	return cmd
}

func newUnreadCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "unread <email>",
		Short: "Print how many messages an account has not read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var found []*accounts.Account
			err := app.withAccounts(func(repo *accounts.Repository) error {
				var err error
				found, err = resolve(cmd.Context(), repo, args[0])
				return err
			})
			if err != nil {
				return err
			}

			return app.withMessages(func(store *messages.Store) error {
				n, err := store.UnreadCount(cmd.Context(), found[0].ID)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", found[0].Email, n)
				return nil
			})
		},
	}
}

func newMessageCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "message <id>",
		Short: "Print one stored message, decrypted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				content string
				msg     domain.Message
			)
			err := app.withMessages(func(store *messages.Store) error {
				var err error
				msg, err = store.Get(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("%s: %w", args[0], err)
				}
				content, err = app.cipher.Decrypt(msg.ContentEncrypted)
				return err
			})
			if err != nil {
				return err
			}

			emails := map[string]string{msg.SenderID: msg.SenderID, msg.ReceiverID: msg.ReceiverID}
			err = app.withAccounts(func(repo *accounts.Repository) error {
				for id := range emails {
					acc, err := repo.FindByID(cmd.Context(), id)
					if errors.Is(err, accounts.ErrNotFound) {
						continue
					}
					if err != nil {
						return err
					}
					emails[id] = acc.Email
				}
				return nil
			})
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintf(w, "id:\t%s\n", msg.ID)
			_, _ = fmt.Fprintf(w, "from:\t%s\n", emails[msg.SenderID])
			_, _ = fmt.Fprintf(w, "to:\t%s\n", emails[msg.ReceiverID])
			_, _ = fmt.Fprintf(w, "sent:\t%s\n", msg.CreatedAt.UTC().Format(time.RFC3339))
			_, _ = fmt.Fprintf(w, "read:\t%t\n", msg.IsRead)
			_, _ = fmt.Fprintf(w, "content:\t%s\n", content)
			return w.Flush()
		},
	}
}
