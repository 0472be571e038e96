package auth

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	platformauth "github.com/agronova/tracker-backend/platform/go/auth"
)

// Command groups auth helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Auth utilities (dev tokens)",
	}

	cmd.AddCommand(tokenCommand())
	return cmd
}

func tokenCommand() *cobra.Command {
	var (
		secret    string
		issuer    string
		userID    int64
		email     string
		isAdmin   bool
		expiresIn time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Generate a signed access token for dev/local use",
		RunE: func(cmd *cobra.Command, args []string) error {
			tokens, err := platformauth.NewTokenIssuer(secret, issuer, expiresIn)
			if err != nil {
				return err
			}

			token, err := tokens.Issue(platformauth.UserCredentials{
				ID:      userID,
				Email:   email,
				IsAdmin: isAdmin,
			})
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", "", "JWT signing secret (must match the API server)")
	cmd.Flags().StringVar(&issuer, "issuer", "tracker-backend", "iss claim")
	cmd.Flags().Int64Var(&userID, "user-id", 0, "sub claim (user id)")
	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().BoolVar(&isAdmin, "admin", false, "set admin=true")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", time.Hour, "token lifetime (e.g. 30m, 2h)")

	_ = cmd.MarkFlagRequired("secret")
	_ = cmd.MarkFlagRequired("user-id")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}
