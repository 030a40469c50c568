package datastore

import (
	"context"
	"fmt"
	"io"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rsamf/mink/internal/errors"
	"github.com/rsamf/mink/internal/logger"
)

// DefaultExportBatch is the number of rows copied per insert.
const DefaultExportBatch = 1000

// TableStats tracks one table of an export.
type TableStats struct {
	Name     string
	Source   int64
	Copied   int64
	Skipped  int64 // already present in the target
	Duration time.Duration
}

// ExportStats summarizes an export.
type ExportStats struct {
	Tables  []TableStats
	Elapsed time.Duration
}

// Write prints a summary table to w.
func (s *ExportStats) Write(w io.Writer) {
	_, _ = fmt.Fprintf(w, "%-20s %10s %10s %10s %12s\n", "Table", "Source", "Copied", "Skipped", "Duration")
	var copied, skipped int64
	for _, t := range s.Tables {
		_, _ = fmt.Fprintf(w, "%-20s %10d %10d %10d %12s\n",
			t.Name, t.Source, t.Copied, t.Skipped, t.Duration.Round(time.Millisecond))
		copied += t.Copied
		skipped += t.Skipped
	}
	_, _ = fmt.Fprintf(w, "%-20s %10s %10d %10d %12s\n", "TOTAL", "", copied, skipped, s.Elapsed.Round(time.Millisecond))
}

// table copies one model. Tables are listed parents first so foreign keys
// hold without disabling checks on the target.
type table struct {
	name   string
	serial bool // has an auto-increment id
	copy   func(ctx context.Context, source, target *gorm.DB, batch int) (TableStats, error)
}

var exportTables = []table{
	{"meetings", true, copyTable[Meeting]},
	{"jobs", false, copyTable[Job]},
	{"transcript_events", true, copyTable[TranscriptEvent]},
	{"ocr_events", true, copyTable[OnScreenEvent]},
	{"intelligent_notes", true, copyTable[IntelligentNote]},
}

// Export copies every row from source into target, preserving ids. Rows
// whose key already exists in target are skipped, so an interrupted export
// can be rerun. The target schema is migrated first.
func Export(ctx context.Context, source, target *gorm.DB, batch int, log logger.Logger) (*ExportStats, error) {
	if batch <= 0 {
		batch = DefaultExportBatch
	}
	if log == nil {
		log = logger.Global().Module("datastore")
	}

	if err := migrate(target); err != nil {
		return nil, err
	}

	start := time.Now()
	stats := &ExportStats{}
	for _, t := range exportTables {
		ts, err := t.copy(ctx, source, target, batch)
		ts.Name = t.name
		if err != nil {
			return stats, errors.New(err).
				Category(errors.CategoryDatabase).
				Context("operation", "export").
				Context("table", t.name).
				Build()
		}
		if t.serial {
			if err := resetSequence(target, t.name); err != nil {
				return stats, err
			}
		}
		stats.Tables = append(stats.Tables, ts)
		log.Info("table exported",
			logger.String("table", t.name),
			logger.Int64("copied", ts.Copied),
			logger.Int64("skipped", ts.Skipped),
			logger.Duration("elapsed", ts.Duration))
	}
	stats.Elapsed = time.Since(start)
	return stats, nil
}

func copyTable[T any](ctx context.Context, source, target *gorm.DB, batch int) (TableStats, error) {
	start := time.Now()
	var ts TableStats

	if err := source.WithContext(ctx).Model(new(T)).Count(&ts.Source).Error; err != nil {
		return ts, fmt.Errorf("failed to count source rows: %w", err)
	}
	if ts.Source == 0 {
		ts.Duration = time.Since(start)
		return ts, nil
	}

	var rows []T
	err := source.WithContext(ctx).Model(new(T)).FindInBatches(&rows, batch, func(_ *gorm.DB, _ int) error {
		result := target.WithContext(ctx).
			Omit(clause.Associations).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(&rows)
		if result.Error != nil {
			return result.Error
		}
		ts.Copied += result.RowsAffected
		ts.Skipped += int64(len(rows)) - result.RowsAffected
		return nil
	}).Error
	ts.Duration = time.Since(start)
	return ts, err
}

// resetSequence moves a postgres serial past the copied ids. MySQL and
// SQLite advance auto-increment on explicit inserts.
func resetSequence(db *gorm.DB, name string) error {
	if db.Dialector.Name() != "postgres" {
		return nil
	}
	sql := fmt.Sprintf("SELECT setval(pg_get_serial_sequence('%s', 'id'), COALESCE(MAX(id), 1)) FROM %s", name, name)
	if err := db.Exec(sql).Error; err != nil {
		return errors.New(err).
			Category(errors.CategoryDatabase).
			Context("operation", "reset_sequence").
			Context("table", name).
			Build()
	}
	return nil
}

// VerifyCounts reports every table whose row count differs between source
// and target.
func VerifyCounts(ctx context.Context, source, target *gorm.DB) error {
	models := []any{&Meeting{}, &Job{}, &TranscriptEvent{}, &OnScreenEvent{}, &IntelligentNote{}}

	var mismatches []error
	for i, model := range models {
		var want, got int64
		if err := source.WithContext(ctx).Model(model).Count(&want).Error; err != nil {
			return fmt.Errorf("failed to count source %s: %w", exportTables[i].name, err)
		}
		if err := target.WithContext(ctx).Model(model).Count(&got).Error; err != nil {
			return fmt.Errorf("failed to count target %s: %w", exportTables[i].name, err)
		}
		if want != got {
			mismatches = append(mismatches, fmt.Errorf("%s: source has %d rows, target has %d", exportTables[i].name, want, got))
		}
	}
	return errors.Join(mismatches...)
}
