package migration

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/BaSui01/llmcouncil/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDatabaseType(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected DatabaseType
		wantErr  bool
	}{
		{"postgres", "postgres", DatabaseTypePostgres, false},
		{"postgresql", "postgresql", DatabaseTypePostgres, false},
		{"pg", "pg", DatabaseTypePostgres, false},
		{"mysql", "mysql", DatabaseTypeMySQL, false},
		{"mariadb", "mariadb", DatabaseTypeMySQL, false},
		{"sqlite", "sqlite", DatabaseTypeSQLite, false},
		{"sqlite3", "sqlite3", DatabaseTypeSQLite, false},
		{"uppercase", "POSTGRES", DatabaseTypePostgres, false},
		{"invalid", "invalid", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseDatabaseType(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestBuildDatabaseURL(t *testing.T) {
	assert.Equal(t,
		"postgres://u:p@db:5432/council?sslmode=disable",
		BuildDatabaseURL(DatabaseTypePostgres, "db", 5432, "council", "u", "p", "disable"))
	assert.Equal(t,
		"postgres://u:p@db:5432/council?sslmode=require",
		BuildDatabaseURL(DatabaseTypePostgres, "db", 5432, "council", "u", "p", ""))
	assert.Equal(t,
		"u:p@tcp(db:3306)/council?parseTime=true&multiStatements=true",
		BuildDatabaseURL(DatabaseTypeMySQL, "db", 3306, "council", "u", "p", ""))
	assert.Empty(t, BuildDatabaseURL(DatabaseTypeSQLite, "", 0, "x.db", "", "", ""))
}

func TestGetMigrationsPath(t *testing.T) {
	assert.Equal(t, "migrations/postgres", GetMigrationsPath(DatabaseTypePostgres))
	assert.Equal(t, "migrations/mysql", GetMigrationsPath(DatabaseTypeMySQL))
}

func TestNewMigrator_InvalidConfig(t *testing.T) {
	_, err := NewMigrator(nil)
	assert.Error(t, err)

	_, err = NewMigrator(&Config{DatabaseType: DatabaseTypePostgres})
	assert.ErrorContains(t, err, "database URL is required")

	_, err = NewMigrator(&Config{DatabaseType: DatabaseTypeSQLite, DatabaseURL: "x.db"})
	assert.ErrorIs(t, err, ErrSQLiteAutoMigrate)
}

func TestNewMigratorFromDatabaseConfig_SQLite(t *testing.T) {
	_, err := NewMigratorFromDatabaseConfig(config.DatabaseConfig{Driver: "sqlite", Name: "x.db"}, nil)
	assert.ErrorIs(t, err, ErrSQLiteAutoMigrate)

	_, err = NewMigratorFromDatabaseConfig(config.DatabaseConfig{Driver: "oracle"}, nil)
	assert.ErrorContains(t, err, "invalid database type")

	_, err = NewMigratorFromConfig(nil, nil)
	assert.Error(t, err)
}

func TestAvailableMigrations(t *testing.T) {
	for _, dbType := range []DatabaseType{DatabaseTypePostgres, DatabaseTypeMySQL} {
		t.Run(string(dbType), func(t *testing.T) {
			migrations, err := AvailableMigrations(dbType)
			require.NoError(t, err)
			require.NotEmpty(t, migrations)
			assert.Equal(t, File{Version: 1, Name: "create_conversations"}, migrations[0])

			for i := 1; i < len(migrations); i++ {
				assert.Greater(t, migrations[i].Version, migrations[i-1].Version)
			}
		})
	}

	_, err := AvailableMigrations(DatabaseTypeSQLite)
	assert.ErrorIs(t, err, ErrSQLiteAutoMigrate)
}

func TestSourceFor(t *testing.T) {
	src, err := sourceFor(DatabaseTypePostgres)
	require.NoError(t, err)
	defer src.Close()

	first, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), first)
}

func TestBuildStatusAndInfo(t *testing.T) {
	files := []File{{1, "a"}, {2, "b"}, {3, "c"}}

	st := buildStatus(files, 2, true)
	require.Len(t, st, 3)
	assert.True(t, st[0].Applied)
	assert.True(t, st[1].Applied)
	assert.True(t, st[1].Dirty)
	assert.False(t, st[2].Applied)

	info := buildInfo(files, 2, false)
	assert.Equal(t, &MigrationInfo{
		CurrentVersion: 2, TotalMigrations: 3, AppliedMigrations: 2, PendingMigrations: 1,
	}, info)
}

// =============================================================================
// CLI
// =============================================================================

type fakeMigrator struct {
	version uint
	dirty   bool
	calls   []string
	err     error
}

func (f *fakeMigrator) record(name string) error {
	f.calls = append(f.calls, name)
	return f.err
}

func (f *fakeMigrator) Up(context.Context) error {
	f.version = 1
	return f.record("up")
}
func (f *fakeMigrator) Down(context.Context) error    { f.version = 0; return f.record("down") }
func (f *fakeMigrator) DownAll(context.Context) error { f.version = 0; return f.record("down-all") }
func (f *fakeMigrator) Steps(_ context.Context, n int) error {
	return f.record("steps")
}
func (f *fakeMigrator) Goto(_ context.Context, v uint) error { f.version = v; return f.record("goto") }
func (f *fakeMigrator) Force(_ context.Context, v int) error {
	f.version = uint(v)
	return f.record("force")
}
func (f *fakeMigrator) Version(context.Context) (uint, bool, error) {
	return f.version, f.dirty, nil
}
func (f *fakeMigrator) Status(context.Context) ([]MigrationStatus, error) {
	return buildStatus([]File{{1, "create_conversations"}}, f.version, f.dirty), nil
}
func (f *fakeMigrator) Info(context.Context) (*MigrationInfo, error) {
	return buildInfo([]File{{1, "create_conversations"}}, f.version, f.dirty), nil
}
func (f *fakeMigrator) Close() error { return nil }

func TestCLI_Run(t *testing.T) {
	ctx := context.Background()
	fm := &fakeMigrator{}
	var buf bytes.Buffer
	cli := NewCLI(fm)
	cli.SetOutput(&buf)

	require.NoError(t, cli.Run(ctx, "version", nil))
	assert.Contains(t, buf.String(), "No migrations applied yet")

	buf.Reset()
	require.NoError(t, cli.Run(ctx, "up", nil))
	assert.Contains(t, buf.String(), "Migrations complete. Current version: 1")

	buf.Reset()
	require.NoError(t, cli.Run(ctx, "status", nil))
	assert.Contains(t, buf.String(), "000001")
	assert.Contains(t, buf.String(), "create_conversations  Applied")
	assert.Contains(t, buf.String(), "Total: 1, Applied: 1, Pending: 0")

	buf.Reset()
	fm.dirty = true
	require.NoError(t, cli.Run(ctx, "version", nil))
	assert.Contains(t, buf.String(), "Current version: 1 (dirty)")

	require.NoError(t, cli.Run(ctx, "force", []string{"1"}))
	require.NoError(t, cli.Run(ctx, "steps", []string{"-1"}))
	require.NoError(t, cli.Run(ctx, "goto", []string{"0"}))
	require.NoError(t, cli.Run(ctx, "down-all", nil))
	require.NoError(t, cli.Run(ctx, "info", nil))
	assert.Equal(t, []string{"up", "force", "steps", "goto", "down-all"}, fm.calls)
}

func TestCLI_RunErrors(t *testing.T) {
	ctx := context.Background()
	cli := NewCLI(&fakeMigrator{})
	cli.SetOutput(&bytes.Buffer{})

	assert.ErrorContains(t, cli.Run(ctx, "bogus", nil), `unknown migrate action "bogus"`)
	assert.ErrorContains(t, cli.Run(ctx, "steps", nil), "requires a numeric argument")
	assert.ErrorContains(t, cli.Run(ctx, "goto", []string{"x"}), "invalid number")
	assert.ErrorContains(t, cli.Run(ctx, "goto", []string{"-2"}), "must not be negative")

	failing := NewCLI(&fakeMigrator{err: errors.New("locked")})
	failing.SetOutput(&bytes.Buffer{})
	assert.ErrorContains(t, failing.Run(ctx, "up", nil), "migration failed: locked")
}
