package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingExecutor struct {
	statements []string
	failOn     int
}

func (r *recordingExecutor) Exec(ctx context.Context, query string, args ...interface{}) error {
	r.statements = append(r.statements, query)
	if r.failOn > 0 && len(r.statements) == r.failOn {
		return errors.New("syntax error")
	}
	return nil
}

func TestSplitSQLStatements(t *testing.T) {
	content := `-- header comment
CREATE TABLE a (
    x UInt8
) ENGINE = Memory;

-- second
CREATE TABLE b (y String);
SELECT 1`

	stmts := splitSQLStatements(content)
	require.Len(t, stmts, 3)
	assert.Contains(t, stmts[0], "CREATE TABLE a")
	assert.NotContains(t, stmts[0], ";")
	assert.Equal(t, "CREATE TABLE b (y String)", stmts[1])
	assert.Equal(t, "SELECT 1", stmts[2])
}

func TestRunClickHouseMigrations_Order(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "002_b.sql"), []byte("CREATE TABLE b (y String);"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "001_a.sql"), []byte("CREATE TABLE a (x UInt8);\nCREATE TABLE c (z UInt8);"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0o600))

	exec := &recordingExecutor{}
	require.NoError(t, RunClickHouseMigrations(context.Background(), exec, dir, nil))

	assert.Equal(t, []string{
		"CREATE TABLE a (x UInt8)",
		"CREATE TABLE c (z UInt8)",
		"CREATE TABLE b (y String)",
	}, exec.statements)
}

func TestRunClickHouseMigrations_StopsOnError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "001.sql"), []byte("SELECT 1;\nSELECT 2;\nSELECT 3;"), 0o600))

	exec := &recordingExecutor{failOn: 2}
	err := RunClickHouseMigrations(context.Background(), exec, dir, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "statement 2 in 001.sql")
	assert.Len(t, exec.statements, 2)
}

func TestRunClickHouseMigrations_MissingDir(t *testing.T) {
	err := RunClickHouseMigrations(context.Background(), &recordingExecutor{}, filepath.Join(t.TempDir(), "nope"), nil)
	assert.Error(t, err)
}

func TestRunClickHouseMigrations_ShippedSchema(t *testing.T) {
	exec := &recordingExecutor{}
	require.NoError(t, RunClickHouseMigrations(context.Background(), exec, "../../migrations/clickhouse", nil))
	require.NotEmpty(t, exec.statements)
	assert.Contains(t, exec.statements[0], "wallet_snapshot_history")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdef", 2))
}
