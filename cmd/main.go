package main

import (
	"fmt"
	"os"

	"or-scheduler/cmd/bootstrap"
	"or-scheduler/internal/domain/entity"
	"or-scheduler/internal/infrastructure/database"
	"or-scheduler/pkg/jwt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "or-scheduler",
		Short: "Operating room scheduling and resource arbitration server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Initialize application with all dependencies
			app, err := bootstrap.New()
			if err != nil {
				logrus.Fatalf("Failed to initialize application: %v", err)
			}

			// Run the application
			app.Run()
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := bootstrap.Setup()
			if err != nil {
				return err
			}
			db, err := bootstrap.OpenDatabase(cfg)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			return database.MigrateUp(db)
		},
	}
	cmd.AddCommand(upCmd)

	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, _ := cmd.Flags().GetInt("steps")
			cfg, _, err := bootstrap.Setup()
			if err != nil {
				return err
			}
			db, err := bootstrap.OpenDatabase(cfg)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			return database.MigrateDown(db, steps)
		},
	}
	downCmd.Flags().Int("steps", 1, "Number of migrations to roll back")
	cmd.AddCommand(downCmd)

	return cmd
}

// tokenCmd signs an access token for an existing surgeon, staff member or admin.
func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			rawID, _ := cmd.Flags().GetString("user-id")
			role, _ := cmd.Flags().GetString("role")

			userID, err := uuid.Parse(rawID)
			if err != nil {
				return fmt.Errorf("invalid user id: %w", err)
			}
			if !entity.ValidRole(entity.Role(role)) {
				return fmt.Errorf("unknown role %q", role)
			}

			cfg, _, err := bootstrap.Setup()
			if err != nil {
				return err
			}
			token, _, err := jwt.NewJWTService(cfg.JWT).GenerateAccessToken(userID, role)
			if err != nil {
				return fmt.Errorf("failed to sign token: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String("user-id", "", "Surgeon, staff or admin id")
	cmd.Flags().String("role", string(entity.RoleAdmin), "admin, surgeon or staff")
	_ = cmd.MarkFlagRequired("user-id")
	return cmd
}
