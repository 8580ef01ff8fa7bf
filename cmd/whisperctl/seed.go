package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mmuslimabdulj/goat-whisper/internal/domain"
	"github.com/mmuslimabdulj/goat-whisper/internal/repository/accounts"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

var defaultSeedUsers = []seedUser{
	{Name: "John Doe", Email: "john@test.com"},
	{Name: "Jane Smith", Email: "jane@test.com"},
	{Name: "Bob Wilson", Email: "bob@test.com"},
	{Name: "Alice Brown", Email: "alice@test.com"},
}

type seedUser struct {
	Name  string
	Email string
}

// parseSeedUser reads "Name <email>" or a bare email
func parseSeedUser(s string) (seedUser, error) {
	s = strings.TrimSpace(s)
	if name, rest, ok := strings.Cut(s, "<"); ok {
		email := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(rest), ">"))
		if !strings.Contains(email, "@") {
			return seedUser{}, fmt.Errorf("invalid user %q", s)
		}
		return seedUser{Name: strings.TrimSpace(name), Email: strings.ToLower(email)}, nil
	}
	if !strings.Contains(s, "@") {
		return seedUser{}, fmt.Errorf("invalid user %q", s)
	}
	local, _, _ := strings.Cut(s, "@")
	return seedUser{Name: local, Email: strings.ToLower(s)}, nil
}

func newSeedCmd(app *app) *cobra.Command {
	var (
		password string
		admin    bool
		cost     int
	)

	cmd := &cobra.Command{
		Use:   "seed [\"Name <email>\"...]",
		Short: "Create test accounts",
		Long:  "Create accounts that do not exist yet. Without arguments a fixed set of four test users is created.",
		RunE: func(cmd *cobra.Command, args []string) error {
			users := defaultSeedUsers
			if len(args) > 0 {
				users = make([]seedUser, 0, len(args))
				for _, arg := range args {
					u, err := parseSeedUser(arg)
					if err != nil {
						return err
					}
					users = append(users, u)
				}
			}

			hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
			if err != nil {
				return fmt.Errorf("hash password: %w", err)
			}
			role := domain.RoleUser
			if admin {
				role = domain.RoleAdmin
			}

			out := cmd.OutOrStdout()
			return app.withAccounts(func(repo *accounts.Repository) error {
				for _, u := range users {
					_, err := repo.FindByEmail(cmd.Context(), u.Email)
					switch {
					case err == nil:
						_, _ = fmt.Fprintf(out, "user already exists: %s\n", u.Email)
						continue
					case !errors.Is(err, accounts.ErrNotFound):
						return err
					}

					acc := &accounts.Account{
						ID:           uuid.NewString(),
						Email:        u.Email,
						Name:         u.Name,
						PasswordHash: string(hash),
						Role:         role,
					}
					if err := repo.Create(cmd.Context(), acc); err != nil {
						return err
					}
					_, _ = fmt.Fprintf(out, "created user: %s\t%s\n", acc.Email, acc.ID)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&password, "password", "password123", "password for every created account")
	cmd.Flags().BoolVar(&admin, "admin", false, "create the accounts with the admin role")
	cmd.Flags().IntVar(&cost, "cost", bcrypt.DefaultCost, "bcrypt cost")
	return cmd
}
