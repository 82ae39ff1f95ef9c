package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"aksara/internal/config"
)

// driverName normalises the configured database type.
func driverName(dbType string) string {
	switch strings.ToLower(strings.TrimSpace(dbType)) {
	case "sqlite", "sqlite3":
		return "sqlite3"
	case "mysql":
		return "mysql"
	}
	return ""
}

// Open connects to the database configured under dbType and checks it answers.
func Open(dbType string, cfg *config.Config) (*sql.DB, error) {
	dbCfg, ok := cfg.Databases[dbType]
	if !ok {
		return nil, fmt.Errorf("database config for %s not found", dbType)
	}
	var (
		db  *sql.DB
		err error
	)
	switch driverName(dbType) {
	case "sqlite3":
		db, err = openSQLite(dbCfg)
	case "mysql":
		db, err = openMySQL(dbCfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", dbType)
	}
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", dbType, err)
	}
	return db, nil
}

func openSQLite(dbCfg config.DatabaseConfig) (*sql.DB, error) {
	if dbCfg.DSN == "" {
		return nil, fmt.Errorf("sqlite dsn must be provided")
	}
	db, err := sql.Open("sqlite3", dbCfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single connection keeps :memory: shared and writers serialised
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
	}
	return db, nil
}

func openMySQL(dbCfg config.DatabaseConfig) (*sql.DB, error) {
	dsn := dbCfg.DSN
	if dsn == "" {
		dsn = mysqlDSN(dbCfg)
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetMaxIdleConns(10)
	return db, nil
}

// mysqlDSN builds the connection string from discrete settings; Params is
// an URL query string such as "charset=utf8mb4&loc=Local".
func mysqlDSN(dbCfg config.DatabaseConfig) string {
	mc := mysql.NewConfig()
	mc.User = dbCfg.Username
	mc.Passwd = dbCfg.Password
	mc.Net = "tcp"
	host := dbCfg.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := dbCfg.Port
	if port == 0 {
		port = 3306
	}
	mc.Addr = fmt.Sprintf("%s:%d", host, port)
	mc.DBName = dbCfg.DBName
	mc.ParseTime = true
	if dbCfg.Params != "" {
		mc.Params = map[string]string{}
		for _, pair := range strings.Split(dbCfg.Params, "&") {
			key, value, _ := strings.Cut(pair, "=")
			if key == "" || key == "parseTime" {
				continue
			}
			mc.Params[key] = value
		}
	}
	return mc.FormatDSN()
}

// Migrate creates the tables and indexes when they are missing.
func Migrate(db *sql.DB, dbType string) error {
	stmts, ok := schemas[driverName(dbType)]
	if !ok {
		return fmt.Errorf("unsupported driver for migration: %s", dbType)
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate (%s): %w", dbType, err)
		}
	}
	return nil
}
