package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

//go:embed sql/*.sql
var migrationsFS embed.FS

// Migration is one embedded SQL file.
type Migration struct {
	Version int
	File    string
	Applied bool
}

// Run opens dsn and applies pending migrations. The MySQL DSN should include
// multiStatements=true since each file runs as a single batch.
func Run(ctx context.Context, dsn string, log *slog.Logger) error {
	db, err := open(ctx, dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	return Apply(ctx, db, log)
}

// Apply runs every embedded migration not yet recorded in schema_migrations,
// in version order.
func Apply(ctx context.Context, db *sql.DB, log *slog.Logger) error {
	migrations, err := Status(ctx, db)
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if m.Applied {
			log.Debug("migration already applied", slog.Int("version", m.Version), slog.String("file", m.File))
			continue
		}
		b, err := fs.ReadFile(migrationsFS, "sql/"+m.File)
		if err != nil {
			return err
		}
		log.Info("applying migration", slog.Int("version", m.Version), slog.String("file", m.File))
		if _, err := db.ExecContext(ctx, string(b)); err != nil {
			return fmt.Errorf("applying %s: %w", m.File, err)
		}
		if _, err := db.ExecContext(ctx,
			"INSERT INTO schema_migrations(version, applied_at) VALUES(?, ?)", m.Version, time.Now().UTC()); err != nil {
			return err
		}
	}
	return nil
}

// Status lists the embedded migrations and whether each has been applied.
func Status(ctx context.Context, db *sql.DB) ([]Migration, error) {
	const ddl = `CREATE TABLE IF NOT EXISTS schema_migrations (
        version BIGINT PRIMARY KEY,
        applied_at DATETIME(6) NOT NULL
    ) ENGINE=InnoDB;`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return nil, err
	}
	applied, err := loadApplied(ctx, db)
	if err != nil {
		return nil, err
	}

	files, err := fs.Glob(migrationsFS, "sql/*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	out := make([]Migration, 0, len(files))
	for _, f := range files {
		base := filepath.Base(f)
		ver, err := parseVersion(base)
		if err != nil {
			return nil, fmt.Errorf("invalid migration filename %q: %w", base, err)
		}
		out = append(out, Migration{Version: ver, File: base, Applied: applied[ver]})
	}
	return out, nil
}

// StatusDSN is Status over a fresh connection to dsn.
func StatusDSN(ctx context.Context, dsn string) ([]Migration, error) {
	db, err := open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return Status(ctx, db)
}

func open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	c, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(c); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func loadApplied(ctx context.Context, db *sql.DB) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	m := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		m[v] = true
	}
	return m, rows.Err()
}

func parseVersion(name string) (int, error) {
	// Expect prefix like 0001_...
	i := strings.IndexByte(name, '_')
	if i <= 0 {
		return 0, fmt.Errorf("missing prefix number")
	}
	return strconv.Atoi(name[:i])
}
