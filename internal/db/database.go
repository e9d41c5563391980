package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Database owns the SQLite handle. The driver pool hands each unit of work
// its own connection, so concurrent ingestion and verification lookups never
// share one; WAL mode gives one writer with concurrent readers.
type Database struct {
	db *sql.DB
}

// NewDatabase opens the database at the given DSN, applies the concurrency
// pragmas, creates the schema if needed and runs the additive migrations.
func NewDatabase(dsn string) (*Database, error) {
	if dsn == "" {
		return nil, errors.New("database DSN is required")
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("ping failed: %w, close failed: %v", err, closeErr)
		}
		return nil, err
	}

	if err := applyPragmas(db); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("apply pragmas failed: %w, close failed: %v", err, closeErr)
		}
		return nil, err
	}

	if err := createTables(db); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("create tables failed: %w, close failed: %v", err, closeErr)
		}
		return nil, err
	}

	if err := migrateSchema(db); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("migrate schema failed: %w, close failed: %v", err, closeErr)
		}
		return nil, err
	}

	return &Database{db: db}, nil
}

// applyPragmas configures the connection for concurrent-read durability:
// write-ahead logging, relaxed-but-safe fsync, a generous lock-wait timeout
// and enforced foreign keys.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=30000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}
	return nil
}

func createTables(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			external_id TEXT UNIQUE NOT NULL,
			username TEXT,
			phone_number TEXT,
			first_name TEXT,
			last_name TEXT,
			is_admin INTEGER DEFAULT 0,
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS sms (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			status TEXT DEFAULT 'received-unread',
			sender TEXT NOT NULL,
			received_date TEXT NOT NULL,
			content TEXT,
			is_sent_to_telegram INTEGER DEFAULT 0,
			verified_by INTEGER,
			deleted_from_sim INTEGER DEFAULT 0,
			created_at TEXT NOT NULL,
			FOREIGN KEY (verified_by) REFERENCES users(id)
		);

		CREATE TABLE IF NOT EXISTS verification (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			sms_id INTEGER,
			status TEXT CHECK(status IN ('success', 'failed')),
			verified_at TEXT NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id),
			FOREIGN KEY (sms_id) REFERENCES sms(id)
		);

		CREATE INDEX IF NOT EXISTS idx_users_external_id ON users(external_id);
		CREATE INDEX IF NOT EXISTS idx_sms_sender ON sms(sender);
		CREATE INDEX IF NOT EXISTS idx_sms_received_date ON sms(received_date);
		CREATE INDEX IF NOT EXISTS idx_sms_verified_by ON sms(verified_by);
		CREATE INDEX IF NOT EXISTS idx_verification_user_id ON verification(user_id);
		CREATE INDEX IF NOT EXISTS idx_verification_sms_id ON verification(sms_id);
		CREATE INDEX IF NOT EXISTS idx_verification_status ON verification(status);
	`

	_, err := db.Exec(schema)
	return err
}

// migrateSchema brings pre-existing databases up to the current layout.
// Only additive, idempotent changes: deployments that created the sms table
// before the status column existed get it added with the default.
func migrateSchema(db *sql.DB) error {
	hasStatus, err := columnExists(db, "sms", "status")
	if err != nil {
		return err
	}
	if !hasStatus {
		if _, err := db.Exec(`ALTER TABLE sms ADD COLUMN status TEXT DEFAULT 'received-unread'`); err != nil {
			return fmt.Errorf("failed to add sms.status column: %w", err)
		}
	}
	return nil
}

func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("failed to inspect %s columns: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name       string
			colType    string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultVal, &pk); err != nil {
			return false, fmt.Errorf("failed to scan column info: %w", err)
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// GetDB exposes the underlying handle for repository construction.
func (d *Database) GetDB() *sql.DB {
	return d.db
}

// WithTx runs fn inside a transaction that commits on success and rolls back
// on any error. Each call gets its own connection from the pool; no ambient
// per-goroutine state is kept.
func (d *Database) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	if d == nil || d.db == nil {
		return errors.New("database is closed")
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// WithReadTx runs fn inside a transaction that is always rolled back, so
// read call sites never pay for a commit fsync. The sqlite3 driver does not
// accept sql.TxOptions.ReadOnly; a deferred transaction that only reads
// takes no write lock, which amounts to the same thing.
func (d *Database) WithReadTx(ctx context.Context, fn func(*sql.Tx) error) error {
	if d == nil || d.db == nil {
		return errors.New("database is closed")
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin read transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	return fn(tx)
}

func (d *Database) Close() error {
	if d == nil {
		return errors.New("database is nil")
	}
	if d.db == nil {
		return errors.New("database already closed")
	}

	err := d.db.Close()
	d.db = nil
	return err
}
