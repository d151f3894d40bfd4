// Package db provides GORM connection and migration helpers for the
// BeeSwarm block store.
package db

import (
	"fmt"
	"os"
	"path/filepath"

	sqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenSQLite opens (and creates if needed) a file-backed SQLite database.
// Pass ":memory:" for an in-memory database (tests).
func OpenSQLite(path string) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("db: sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("db: create data dir: %w", err)
		}
	}
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("db: open sqlite %s: %w", path, err)
	}
	return gdb, nil
}

// MySQLDSN builds a DSN for a shared MySQL server using the driver's own
// formatter rather than string concatenation.
func MySQLDSN(host string, port int, database, user, password string) string {
	cfg := sqldriver.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", host, port)
	cfg.DBName = database
	cfg.User = user
	cfg.Passwd = password
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

// OpenMySQL opens a GORM connection to a MySQL server.
func OpenMySQL(host string, port int, database, user, password string) (*gorm.DB, error) {
	dsn := MySQLDSN(host, port, database, user, password)
	gdb, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("db: connect to %s:%d/%s: %w", host, port, database, err)
	}
	return gdb, nil
}
