package joblog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DefaultFileName is the SQLite file created under the log directory.
const DefaultFileName = "executor-log.db"

// PathDSN returns the SQLite DSN for a log directory.
func PathDSN(logDir string) string {
	if logDir == "" {
		return ":memory:"
	}
	return filepath.Join(logDir, DefaultFileName)
}

// postgresKeys are the libpq keywords accepted as the first pair of a
// key/value DSN.
var postgresKeys = map[string]bool{
	"host":     true,
	"hostaddr": true,
	"port":     true,
	"user":     true,
	"dbname":   true,
	"password": true,
	"sslmode":  true,
}

// IsPostgresDSN reports whether dsn selects the PostgreSQL backend: a
// postgres:// or postgresql:// URL, or a key/value DSN such as
// "host=localhost user=x dbname=y".
func IsPostgresDSN(dsn string) bool {
	dsn = strings.TrimSpace(dsn)
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return true
	}
	key, _, ok := strings.Cut(dsn, "=")
	return ok && postgresKeys[key]
}

// Open connects to the log database named by dsn. PostgreSQL URLs and
// key/value DSNs use the postgres driver; anything else is a SQLite path,
// whose parent directory is created if missing.
func Open(dsn string, opts ...PoolOption) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}

	var dialector gorm.Dialector
	switch {
	case IsPostgresDSN(dsn):
		dialector = postgres.Open(dsn)
	default:
		if dsn != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
				return nil, fmt.Errorf("create log directory: %w", err)
			}
		}
		dialector = sqlite.Open(dsn)
		// SQLite is used through a single connection.
		opts = append(opts, MaxOpenConns(1), MaxIdleConns(1))
	}

	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("open log database: %w", err)
	}
	if err := ConfigurePool(db, opts...); err != nil {
		return nil, err
	}
	return db, nil
}
