package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	usersrepo "github.com/agronova/tracker-backend/domains/users/be/repo"
	"github.com/agronova/tracker-backend/platform/go/persistence"
	"github.com/agronova/tracker-backend/platform/go/service"
)

// Notes/constraints:
// - `bootstrap schema` applies the embedded DDL (audit, users, trackers) and is idempotent.
// - `bootstrap admin` is check-or-create by email; it never overwrites an existing user.
// - Admin seeding writes through the regular persistence layer so the audit trail records it.

// Command groups bootstrap helpers (schema DDL, admin user seeding).
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Bootstrap database schema and initial admin user",
		Long:  "Bootstrap database resources such as the base schema and the initial admin user.",
	}

	cmd.AddCommand(schemaCommand())
	cmd.AddCommand(adminCommand())
	return cmd
}

func schemaCommand() *cobra.Command {
	var databaseURL string

	c := &cobra.Command{
		Use:   "schema",
		Short: "Apply the embedded database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: databaseURL})
			if err != nil {
				return fmt.Errorf("init pool: %w", err)
			}
			defer persistence.ClosePool(pool)

			if err := persistence.BootstrapSchema(ctx, pool); err != nil {
				return fmt.Errorf("apply schema: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Schema applied.")
			return nil
		},
	}

	c.Flags().StringVar(&databaseURL, "database-url", "", "PostgreSQL connection string")
	_ = c.MarkFlagRequired("database-url")

	return c
}

func adminCommand() *cobra.Command {
	var (
		databaseURL string
		email       string
		password    string
		name        string
	)

	c := &cobra.Command{
		Use:   "admin",
		Short: "Seed the initial admin user",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			email = strings.TrimSpace(email)
			name = strings.TrimSpace(name)
			if email == "" || name == "" {
				return fmt.Errorf("admin email and name are required")
			}
			if len(password) < 8 {
				return fmt.Errorf("admin password must be at least 8 characters")
			}

			pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: databaseURL})
			if err != nil {
				return fmt.Errorf("init pool: %w", err)
			}
			defer persistence.ClosePool(pool)

			repo, err := persistence.NewRepository(pool, zap.NewNop())
			if err != nil {
				return fmt.Errorf("init repository: %w", err)
			}

			userRepo := usersrepo.NewPostgresRepository(repo)

			existing, err := userRepo.FindByEmail(ctx, email)
			if err != nil {
				return fmt.Errorf("lookup admin user: %w", err)
			}
			if existing != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Admin user already exists: %s (id %v)\n", email, existing["id"])
				return nil
			}

			hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
			if err != nil {
				return fmt.Errorf("hash password: %w", err)
			}

			entitySvc := service.New(repo, zap.NewNop())
			user, err := entitySvc.Save(ctx, usersrepo.Descriptor(), map[string]any{
				"name":     name,
				"email":    email,
				"password": string(hash),
				"is_admin": true,
			}, nil, nil)
			if err != nil {
				return fmt.Errorf("create admin user: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Admin user created: %s (id %v)\n", email, user["id"])
			return nil
		},
	}

	c.Flags().StringVar(&databaseURL, "database-url", "", "PostgreSQL connection string")
	c.Flags().StringVar(&email, "email", "", "Initial admin user email")
	c.Flags().StringVar(&password, "password", "", "Initial admin user password")
	c.Flags().StringVar(&name, "name", "", "Initial admin user display name")

	_ = c.MarkFlagRequired("database-url")
	_ = c.MarkFlagRequired("email")
	_ = c.MarkFlagRequired("password")
	_ = c.MarkFlagRequired("name")

	return c
}
