package main

import (
	"bufio"
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"ticketing/internal/config"
	"ticketing/internal/db"

	"github.com/jmoiron/sqlx"
)

func main() {
	dir := flag.String("dir", "migrations", "directory holding *.sql migrations")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	cfg := config.Load()
	ctx := context.Background()

	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer database.Close()

	applied, err := migrate(ctx, database, *dir, logger)
	if err != nil {
		logger.Error("migration failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("migrations complete", slog.Int("applied", applied))
}

func migrate(ctx context.Context, database *sqlx.DB, dir string, logger *slog.Logger) (int, error) {
	if _, err := database.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (filename text primary key, applied_at timestamptz default now())`); err != nil {
		return 0, fmt.Errorf("ensure schema_migrations: %w", err)
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return 0, fmt.Errorf("read migrations: %w", err)
	}
	sort.Strings(files)

	applied := 0
	for _, file := range files {
		filename := filepath.Base(file)
		var exists bool
		if err := database.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)`, filename); err != nil {
			return applied, fmt.Errorf("read migration state: %w", err)
		}
		if exists {
			continue
		}
		content, err := os.ReadFile(file)
		if err != nil {
			return applied, err
		}
		// A file and its schema_migrations row commit together.
		tx, err := database.BeginTxx(ctx, nil)
		if err != nil {
			return applied, err
		}
		if err := applyStatements(ctx, tx, upStatements(string(content))); err != nil {
			_ = tx.Rollback()
			return applied, fmt.Errorf("apply %s: %w", filename, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, filename); err != nil {
			_ = tx.Rollback()
			return applied, fmt.Errorf("record %s: %w", filename, err)
		}
		if err := tx.Commit(); err != nil {
			return applied, fmt.Errorf("commit %s: %w", filename, err)
		}
		applied++
		logger.Info("applied migration", slog.String("file", filename))
	}
	return applied, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func applyStatements(ctx context.Context, exec execer, statements []string) error {
	for _, stmt := range statements {
		if _, err := exec.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// upStatements returns the statements above the "-- +migrate Down" marker.
func upStatements(content string) []string {
	up, _, _ := strings.Cut(content, "-- +migrate Down")
	return splitSQL(up)
}

func splitSQL(sqlText string) []string {
	var statements []string
	var current strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(sqlText))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		current.WriteString(line)
		current.WriteRune('\n')
		if strings.HasSuffix(strings.TrimSpace(line), ";") {
			statements = appendStatement(statements, current.String())
			current.Reset()
		}
	}
	return appendStatement(statements, current.String())
}

func appendStatement(statements []string, stmt string) []string {
	if strings.TrimSpace(stmt) == "" {
		return statements
	}
	return append(statements, stmt)
}
