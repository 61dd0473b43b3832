package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/md-rashed-zaman/seqlog/libs/db"
	"github.com/spf13/cobra"
)

type MigrateOptions struct {
	*RootOptions
	DatabaseURL string
}

// NewMigrateCommand applies the event log schema. The statements are
// idempotent so the command can be rerun against an existing database.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MigrateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "migrate",
		Short:         "Apply the event log schema",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.DatabaseURL, "database-url", getenv("DATABASE_URL", ""), "PostgreSQL connection string")
	return cmd
}

func runMigrate(cmd *cobra.Command, opts *MigrateOptions) error {
	if strings.TrimSpace(opts.DatabaseURL) == "" {
		return errors.New("--database-url (or DATABASE_URL) is required")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
	defer cancel()

	pool, err := db.Open(ctx, opts.DatabaseURL, db.Options{MaxConns: 1})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return writeMessage(cmd.OutOrStdout(), opts.Format, "schema applied")
}
