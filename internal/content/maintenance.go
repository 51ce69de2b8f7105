package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/at-ishikawa/kikitori/internal/database"
)

const backupAlias = "backup_source"

// DatabasePath returns the file backing the main database, or "" for an in-memory database.
func (s *Store) DatabasePath(ctx context.Context) (string, error) {
	var path string
	if err := s.db.GetContext(ctx, &path, `SELECT file FROM pragma_database_list WHERE name = 'main'`); err != nil {
		return "", storageError("database path", err)
	}
	return path, nil
}

func (s *Store) backupDirectory(ctx context.Context) (string, error) {
	if s.backupDir != "" {
		return s.backupDir, nil
	}
	path, err := s.DatabasePath(ctx)
	if err != nil {
		return "", err
	}
	if path == "" {
		return "", validationErrorf("backup_directory", "no backup directory is configured for an in-memory database")
	}
	return filepath.Join(filepath.Dir(path), "backups"), nil
}

// BackupFileName is the name Backup gives a backup taken at t.
func BackupFileName(t time.Time) string {
	return fmt.Sprintf("kikitori_backup_%s.db", t.Format("20060102_150405"))
}

func (s *Store) defaultBackupPath(ctx context.Context) (string, error) {
	dir, err := s.backupDirectory(ctx)
	if err != nil {
		return "", err
	}
	name := BackupFileName(s.now())
	path := filepath.Join(dir, name)
	ext := filepath.Ext(name)
	for i := 1; fileExists(path); i++ {
		path = filepath.Join(dir, fmt.Sprintf("%s_%d%s", name[:len(name)-len(ext)], i, ext))
	}
	return path, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Backup writes a consistent copy of the database to path, or to a timestamped file in
// the backup directory when path is empty, and returns the written path.
func (s *Store) Backup(ctx context.Context, path string) (string, error) {
	if path == "" {
		var err error
		if path, err = s.defaultBackupPath(ctx); err != nil {
			return "", err
		}
	} else if fileExists(path) {
		return "", validationErrorf("path", "%s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", storageError("backup", fmt.Errorf("create backup directory: %w", err))
	}

	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, path); err != nil {
		return "", storageError("backup", fmt.Errorf("db.ExecContext(VACUUM INTO %s) > %w", path, err))
	}
	slog.Default().Info("backed up database", "path", path)
	return path, nil
}

// Restore replaces every row of the database with the rows of the backup at path.
// The current state is backed up first and the snapshot path is returned.
// The copy runs in one transaction, so a failed restore leaves the current data in place.
func (s *Store) Restore(ctx context.Context, path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", validationErrorf("path", "backup file %s does not exist", path)
	}
	if info.IsDir() {
		return "", validationErrorf("path", "%s is a directory", path)
	}

	snapshot, err := s.Backup(ctx, "")
	if err != nil {
		return "", fmt.Errorf("snapshot current database: %w", err)
	}

	conn, err := s.db.Connx(ctx)
	if err != nil {
		return snapshot, storageError("restore", fmt.Errorf("db.Connx() > %w", err))
	}
	defer func() {
		_ = conn.Close()
	}()

	// ATTACH and DETACH cannot run inside a transaction
	if _, err := conn.ExecContext(ctx, fmt.Sprintf("ATTACH DATABASE ? AS %s", backupAlias), path); err != nil {
		return snapshot, storageError("restore", fmt.Errorf("conn.ExecContext(ATTACH %s) > %w", path, err))
	}
	defer func() {
		if _, err := conn.ExecContext(context.Background(), fmt.Sprintf("DETACH DATABASE %s", backupAlias)); err != nil {
			slog.Default().Warn("failed to detach backup database", "error", err)
		}
	}()

	err = database.RunInTx(ctx, conn, func(ctx context.Context, tx *sqlx.Tx) error {
		var tables []string
		if err := tx.SelectContext(ctx, &tables, fmt.Sprintf(
			`SELECT name FROM %s.sqlite_master WHERE type = 'table'`, backupAlias)); err != nil {
			return fmt.Errorf("tx.SelectContext(sqlite_master) > %w", err)
		}
		present := make(map[string]bool, len(tables))
		for _, table := range tables {
			present[table] = true
		}
		for _, table := range tableColumns {
			if !present[table.name] {
				return validationErrorf("path", "%s is not a kikitori backup: table %s is missing", path, table.name)
			}
		}

		for i := len(tableColumns) - 1; i >= 0; i-- {
			if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM main.%s", tableColumns[i].name)); err != nil {
				return fmt.Errorf("tx.ExecContext(DELETE %s) > %w", tableColumns[i].name, err)
			}
		}
		for _, table := range tableColumns {
			query := fmt.Sprintf("INSERT INTO main.%s (%s) SELECT %s FROM %s.%s",
				table.name, table.columns, table.columns, backupAlias, table.name)
			if _, err := tx.ExecContext(ctx, query); err != nil {
				return fmt.Errorf("tx.ExecContext(INSERT %s) > %w", table.name, err)
			}
		}
		return nil
	})
	if err != nil {
		return snapshot, storageError("restore", err)
	}

	slog.Default().Info("restored database", "from", path, "snapshot", snapshot)
	return snapshot, nil
}

type levelCount struct {
	Level *string `db:"jlpt_level"`
	Count int     `db:"count"`
}

// Stats counts rows, embeddings and JLPT levels and reports the database file size.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{
		TranscriptLevels: map[Level]int{},
		QuestionLevels:   map[Level]int{},
	}
	err := database.RunInTx(ctx, s.db, func(ctx context.Context, tx *sqlx.Tx) error {
		counts := []struct {
			dest  *int
			query string
		}{
			{&stats.Transcripts, `SELECT COUNT(*) FROM transcripts`},
			{&stats.Segments, `SELECT COUNT(*) FROM segments`},
			{&stats.Questions, `SELECT COUNT(*) FROM questions`},
			{&stats.Vocabulary, `SELECT COUNT(*) FROM vocabulary`},
			{&stats.EmbeddedTranscripts, `SELECT COUNT(*) FROM transcripts WHERE embedding IS NOT NULL`},
			{&stats.EmbeddedSegments, `SELECT COUNT(*) FROM segments WHERE embedding IS NOT NULL`},
		}
		for _, c := range counts {
			if err := tx.GetContext(ctx, c.dest, c.query); err != nil {
				return fmt.Errorf("tx.GetContext(%s) > %w", c.query, err)
			}
		}

		levels := []struct {
			dest  map[Level]int
			table string
		}{
			{stats.TranscriptLevels, "transcripts"},
			{stats.QuestionLevels, "questions"},
		}
		for _, l := range levels {
			var rows []levelCount
			if err := tx.SelectContext(ctx, &rows, fmt.Sprintf(
				`SELECT jlpt_level, COUNT(*) AS count FROM %s GROUP BY jlpt_level`, l.table)); err != nil {
				return fmt.Errorf("tx.SelectContext(%s levels) > %w", l.table, err)
			}
			for _, row := range rows {
				l.dest[levelFromNull(row.Level)] = row.Count
			}
		}
		return nil
	})
	if err != nil {
		return Stats{}, storageError("stats", err)
	}

	if stats.Path, err = s.DatabasePath(ctx); err != nil {
		return Stats{}, err
	}
	if stats.Path != "" {
		info, err := os.Stat(stats.Path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return Stats{}, storageError("stats", fmt.Errorf("os.Stat(%s) > %w", stats.Path, err))
		}
		if info != nil {
			stats.SizeBytes = info.Size()
			stats.LastModified = info.ModTime()
		}
	}
	return stats, nil
}
