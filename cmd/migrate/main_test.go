package main

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestUpStatementsStopsAtDownMarker(t *testing.T) {
	content := `-- create wallets
CREATE TABLE wallets (
    id TEXT PRIMARY KEY,
    coins BIGINT NOT NULL DEFAULT 0 CHECK (coins >= 0)
);
CREATE INDEX wallets_coins_idx ON wallets (coins);

-- +migrate Down
DROP TABLE wallets;
`
	statements := upStatements(content)
	if len(statements) != 2 {
		t.Fatalf("expected 2 statements, got %d: %#v", len(statements), statements)
	}
	if !strings.HasPrefix(statements[0], "CREATE TABLE wallets") || !strings.Contains(statements[0], "CHECK (coins >= 0)") {
		t.Fatalf("unexpected first statement: %q", statements[0])
	}
	for _, stmt := range statements {
		if strings.Contains(stmt, "DROP") {
			t.Fatalf("down statement leaked into up: %q", stmt)
		}
	}
}

func TestSplitSQLKeepsTrailingStatement(t *testing.T) {
	statements := splitSQL("SELECT 1;\nSELECT 2")
	if len(statements) != 2 || strings.TrimSpace(statements[1]) != "SELECT 2" {
		t.Fatalf("unexpected statements: %#v", statements)
	}
}

type recordingExecer struct {
	queries []string
	failOn  string
}

func (r *recordingExecer) ExecContext(_ context.Context, query string, _ ...any) (sql.Result, error) {
	if r.failOn != "" && strings.Contains(query, r.failOn) {
		return nil, errors.New("syntax error")
	}
	r.queries = append(r.queries, query)
	return nil, nil
}

func TestApplyStatementsStopsOnError(t *testing.T) {
	exec := &recordingExecer{failOn: "BROKEN"}
	err := applyStatements(context.Background(), exec, []string{"SELECT 1;", "BROKEN;", "SELECT 3;"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if len(exec.queries) != 1 {
		t.Fatalf("expected one statement before failure, got %#v", exec.queries)
	}
}

func TestShippedMigrationsParse(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("..", "..", "migrations", "*.sql"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(files) == 0 {
		t.Fatalf("no migrations found")
	}
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			t.Fatalf("read %s: %v", file, err)
		}
		statements := upStatements(string(content))
		if len(statements) == 0 {
			t.Fatalf("%s has no up statements", file)
		}
		for _, stmt := range statements {
			if !strings.HasSuffix(strings.TrimSpace(stmt), ";") {
				t.Fatalf("%s: unterminated statement %q", file, stmt)
			}
		}
	}
}
