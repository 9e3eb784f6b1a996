package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/cybermonitor/monitor-stack/common/config"
	"github.com/cybermonitor/monitor-stack/common/database"
	"github.com/cybermonitor/monitor-stack/monitor/migrations"
)

func newMigrateCommand(load loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the anomaly store schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conn, err := postgresURL(load)
			if err != nil {
				return err
			}
			if err := migrations.Up(conn); err != nil {
				return err
			}
			return printVersion(cmd, conn)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations (default: 1 step)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n <= 0 {
					return fmt.Errorf("steps must be a positive integer, got %q", args[0])
				}
				steps = n
			}
			conn, err := postgresURL(load)
			if err != nil {
				return err
			}
			if err := migrations.Down(conn, steps); err != nil {
				return err
			}
			return printVersion(cmd, conn)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conn, err := postgresURL(load)
			if err != nil {
				return err
			}
			return printVersion(cmd, conn)
		},
	})

	return cmd
}

func printVersion(cmd *cobra.Command, conn string) error {
	v, dirty, err := migrations.Version(conn)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty: %t)\n", v, dirty)
	return nil
}

// postgresURL loads config and returns the store connection string. Only
// the postgres store has a schema.
func postgresURL(load loader) (string, error) {
	cfg, _, err := load()
	if err != nil {
		return "", err
	}
	return storeURL(cfg)
}

func storeURL(cfg *config.Config) (string, error) {
	if cfg.Database.Type != "postgres" {
		return "", fmt.Errorf("database.type is %q; this command needs postgres", cfg.Database.Type)
	}
	pg := cfg.Database.Postgres
	return database.PostgresURL(pg.User, pg.Password, pg.Host, pg.Port, pg.Database, pg.SSLMode), nil
}
