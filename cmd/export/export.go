// Package export copies a SQLite database into the configured database.
package export

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rsamf/mink/internal/conf"
	"github.com/rsamf/mink/internal/datastore"
	"github.com/rsamf/mink/internal/logger"
)

// Command returns the export command.
func Command(load func(...conf.Override) (*conf.Settings, error)) *cobra.Command {
	var (
		sqlitePath string
		batch      int
		verify     bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Copy a SQLite database into the configured database",
		Long: `Copy meetings, jobs, events and notes from a local SQLite file into the
database configured under db (MySQL, PostgreSQL or Cloud SQL). Ids are
preserved and rows already present in the target are skipped, so an
interrupted export can be rerun.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := load()
			if err != nil {
				return err
			}
			if _, err := os.Stat(sqlitePath); err != nil {
				return fmt.Errorf("source database: %w", err)
			}
			if settings.DB.Provider == conf.DBSQLite && sameFile(settings.DB.Path, sqlitePath) {
				return fmt.Errorf("source and target are the same database: %s", sqlitePath)
			}

			log := logger.Global().Module("export")

			source, err := datastore.NewSQLiteManager(&conf.DBSettings{Path: sqlitePath}, log)
			if err != nil {
				return err
			}
			defer func() { _ = source.Close() }()

			target, err := datastore.Open(&settings.DB, log)
			if err != nil {
				return err
			}
			defer func() { _ = target.Close() }()

			stats, err := datastore.Export(cmd.Context(), source.DB(), target.DB(), batch, log)
			if stats != nil {
				stats.Write(cmd.OutOrStdout())
			}
			if err != nil {
				return err
			}

			if verify {
				if err := datastore.VerifyCounts(cmd.Context(), source.DB(), target.DB()); err != nil {
					return fmt.Errorf("verification failed: %w", err)
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "row counts match")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sqlitePath, "sqlite", "mink.db", "Path to the source SQLite database")
	cmd.Flags().IntVar(&batch, "batch", datastore.DefaultExportBatch, "Rows per insert")
	cmd.Flags().BoolVar(&verify, "verify", true, "Compare row counts after the export")

	return cmd
}

func sameFile(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}
