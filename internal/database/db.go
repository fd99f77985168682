// Package database opens the SQL store and applies the schema.  MySQL is
// the production backend; SQLite (pure Go, modernc.org/sqlite) serves
// single-node deployments and tests.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"github.com/iliyamo/owleye/internal/config"
)

// Open connects to the database described by cfg and verifies the
// connection with a ping.
func Open(cfg config.Config) (*sql.DB, error) {
	switch cfg.DBDriver {
	case "mysql":
		return OpenMySQL(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	case "sqlite":
		return OpenSQLite(cfg.SQLiteDSN)
	}
	return nil, fmt.Errorf("database: unsupported driver %q", cfg.DBDriver)
}

// OpenMySQL connects to MySQL and verifies the connection.
func OpenMySQL(user, pass, host, port, name string) (*sql.DB, error) {
	auth := user
	if pass != "" {
		auth = fmt.Sprintf("%s:%s", user, pass)
	}
	// times are stored as unix milliseconds, so parseTime is not needed
	dsn := fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&loc=UTC", auth, host, port, name)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, ping(db)
}

// OpenSQLite opens a SQLite database.  SQLite allows a single writer, so
// the pool is pinned to one connection; transactions then queue on the
// pool instead of failing with SQLITE_BUSY.
func OpenSQLite(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, ping(db)
}

func ping(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}
	return nil
}
