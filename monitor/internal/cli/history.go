package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/cybermonitor/monitor-stack/common/database"
	"github.com/cybermonitor/monitor-stack/monitor/internal/repository"
	"github.com/cybermonitor/monitor-stack/monitor/internal/service"
)

func newHistoryCommand(load loader) *cobra.Command {
	var (
		limit  int
		format string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded anomalies, newest first",
		Example: `  monitor history
  monitor history --limit 20 --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := load()
			if err != nil {
				return err
			}
			conn, err := storeURL(cfg)
			if err != nil {
				return err
			}

			repo, err := repository.NewPostgresRepository(cmd.Context(), conn)
			if err != nil {
				return err
			}
			defer repo.Close()

			ctx, cancel := database.QueryContext(cmd.Context())
			defer cancel()

			return printHistory(ctx, cmd, service.NewHistoryService(repo, cfg.History.DefaultLimit, cfg.History.MaxLimit), limit, format)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of anomalies (default from history.default_limit)")
	cmd.Flags().StringVarP(&format, "output", "o", FormatTable, "output format: table, json, yaml")
	return cmd
}

func printHistory(ctx context.Context, cmd *cobra.Command, svc *service.HistoryService, limit int, format string) error {
	events, err := svc.ListRecent(ctx, limit)
	if err != nil {
		return err
	}
	return writeAnomalies(cmd.OutOrStdout(), format, events)
}
