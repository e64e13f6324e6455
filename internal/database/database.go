package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"curator/pkg/models"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// Database is the registry of recently opened datasets. It is safe for
// concurrent use because the underlying *sql.DB is concurrency-safe.
type Database struct {
	conn   *sql.DB
	logger *logrus.Logger

	upsertDatasetStmt *sql.Stmt
	recentStmt        *sql.Stmt
	removeDatasetStmt *sql.Stmt
}

// NewDatabase opens (or creates) the SQLite registry at dbPath and ensures
// its schema exists. Caller should Close() it when finished.
func NewDatabase(dbPath string, logger *logrus.Logger) (*Database, error) {
	if logger == nil {
		logger = logrus.New()
	}

	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(2)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(15 * time.Minute)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA temp_store=memory;",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			logger.WithError(err).WithField("pragma", pragma).Warn("Failed to set pragma")
		}
	}

	db := &Database{
		conn:   conn,
		logger: logger,
	}

	if err := db.createTables(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if err := db.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	logger.WithField("db_path", dbPath).Debug("Database initialized successfully")
	return db, nil
}

// createTables creates the schema if it does not already exist, then runs
// migrations. Safe to call repeatedly.
func (db *Database) createTables() error {
	datasetsTable := `
	CREATE TABLE IF NOT EXISTS datasets (
		path TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		num_samples INTEGER DEFAULT 0,
		captioned INTEGER DEFAULT 0,
		last_opened INTEGER NOT NULL
	);`

	if _, err := db.conn.Exec(datasetsTable); err != nil {
		return err
	}

	if _, err := db.conn.Exec("CREATE INDEX IF NOT EXISTS idx_datasets_last_opened ON datasets(last_opened)"); err != nil {
		return err
	}

	return db.runMigrations()
}

// runMigrations performs incremental schema updates in-place. Each migration
// must be idempotent.
func (db *Database) runMigrations() error {
	// Migration 1: remember the manifest a dataset was opened through
	var columnExists bool
	err := db.conn.QueryRow(`
		SELECT COUNT(*) > 0
		FROM pragma_table_info('datasets')
		WHERE name = 'manifest_path'`).Scan(&columnExists)
	if err != nil {
		return err
	}

	if !columnExists {
		if _, err := db.conn.Exec("ALTER TABLE datasets ADD COLUMN manifest_path TEXT DEFAULT ''"); err != nil {
			return err
		}
		db.logger.Info("Added manifest_path column to datasets table")
	}

	return nil
}

func (db *Database) prepareStatements() error {
	var err error

	db.upsertDatasetStmt, err = db.conn.Prepare(`
		INSERT INTO datasets (path, manifest_path, name, num_samples, captioned, last_opened)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			manifest_path = excluded.manifest_path,
			name = excluded.name,
			num_samples = excluded.num_samples,
			captioned = excluded.captioned,
			last_opened = excluded.last_opened`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert dataset statement: %w", err)
	}

	db.recentStmt, err = db.conn.Prepare(`
		SELECT path, manifest_path, name, num_samples, captioned, last_opened
		FROM datasets
		ORDER BY last_opened DESC, path
		LIMIT ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare recent datasets statement: %w", err)
	}

	db.removeDatasetStmt, err = db.conn.Prepare(`DELETE FROM datasets WHERE path = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare remove dataset statement: %w", err)
	}

	return nil
}

// RecordOpen inserts or refreshes the registry entry for a dataset. A zero
// LastOpened is stamped with the current time.
func (db *Database) RecordOpen(ds models.RecentDataset) error {
	if ds.LastOpened.IsZero() {
		ds.LastOpened = time.Now()
	}

	_, err := db.upsertDatasetStmt.Exec(ds.Path, ds.ManifestPath, ds.Name, ds.NumSamples, ds.Captioned, ds.LastOpened.UnixNano())
	if err != nil {
		db.logger.WithError(err).WithField("path", ds.Path).Error("Failed to record dataset")
		return fmt.Errorf("failed to record dataset: %w", err)
	}
	return nil
}

// RecentDatasets returns up to limit datasets, most recently opened first.
// A limit below 1 returns every entry.
func (db *Database) RecentDatasets(limit int) ([]models.RecentDataset, error) {
	if limit < 1 {
		limit = -1
	}

	rows, err := db.recentStmt.Query(limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent datasets: %w", err)
	}
	defer rows.Close()

	var datasets []models.RecentDataset
	for rows.Next() {
		var (
			ds       models.RecentDataset
			manifest sql.NullString
			opened   int64
		)
		if err := rows.Scan(&ds.Path, &manifest, &ds.Name, &ds.NumSamples, &ds.Captioned, &opened); err != nil {
			return nil, err
		}
		if manifest.Valid {
			ds.ManifestPath = manifest.String
		}
		ds.LastOpened = time.Unix(0, opened)
		datasets = append(datasets, ds)
	}
	return datasets, rows.Err()
}

// RemoveDataset forgets a dataset. Removing an unknown path is not an error.
func (db *Database) RemoveDataset(path string) error {
	if _, err := db.removeDatasetStmt.Exec(path); err != nil {
		return fmt.Errorf("failed to remove dataset: %w", err)
	}
	return nil
}

// Ping checks that the registry is reachable.
func (db *Database) Ping() error {
	return db.conn.Ping()
}

// Close closes the prepared statements and the underlying connection.
func (db *Database) Close() error {
	statements := []*sql.Stmt{
		db.upsertDatasetStmt,
		db.recentStmt,
		db.removeDatasetStmt,
	}

	for _, stmt := range statements {
		if stmt != nil {
			if err := stmt.Close(); err != nil {
				db.logger.WithError(err).Error("Failed to close prepared statement")
			}
		}
	}

	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
