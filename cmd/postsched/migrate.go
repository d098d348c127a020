package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"postsched/internal/app"
	"postsched/internal/storage"
	logx "postsched/pkg/logx"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := app.LoadConfig(flagConfig)
			if err != nil {
				return err
			}
			log := logx.NewConsole(cfg.Logging.Level)
			st, err := app.OpenStore(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer st.Close()
			// Open already migrated; running it again checks idempotency.
			if err := st.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (driver=%s)\n", storage.NormalizeDriver(cfg.Storage.Driver))
			return nil
		},
	}
}
