package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// DB is the SQLite database holding trust records and client certificate
// assignments.
type DB struct {
	db     *sql.DB
	dbPath string
}

// Options configures DB behavior.
type Options struct {
	// CreateIfNotExists creates the database file and its directory.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the database file at dbPath.
func Open(dbPath string, opts Options) (*DB, error) {
	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w at %s", ErrDatabaseNotFound, dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	d := &DB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}
	if err := d.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return d, nil
}

// Path returns the database file path.
func (d *DB) Path() string {
	return d.dbPath
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS cert_cache (
		hostname TEXT NOT NULL,
		address TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		first_seen TEXT NOT NULL,
		last_seen TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_cert_cache_host ON cert_cache(hostname, address);

	CREATE TABLE IF NOT EXISTS client_cert_files (
		hostname TEXT PRIMARY KEY,
		cert_path TEXT NOT NULL,
		key_path TEXT NOT NULL
	);
	`
	_, err := d.db.ExecContext(context.Background(), schema)
	return err
}

// TrustRecord is one certificate fingerprint seen for a host and address.
type TrustRecord struct {
	Hostname    string
	Address     string
	Fingerprint string
	FirstSeen   time.Time
	LastSeen    time.Time
	Count       int
}

// TrustRecords returns every fingerprint recorded for hostname at address.
func (d *DB) TrustRecords(ctx context.Context, hostname, address string) ([]TrustRecord, error) {
	query := `
	SELECT hostname, address, fingerprint, first_seen, last_seen, count
	FROM cert_cache
	WHERE hostname = ? AND address = ?
	ORDER BY count DESC, first_seen ASC
	`
	rows, err := d.db.QueryContext(ctx, query, hostname, address)
	if err != nil {
		return nil, fmt.Errorf("failed to query trust records: %w", err)
	}
	defer rows.Close()

	var records []TrustRecord
	for rows.Next() {
		var r TrustRecord
		var first, last string
		if err := rows.Scan(&r.Hostname, &r.Address, &r.Fingerprint, &first, &last, &r.Count); err != nil {
			return nil, fmt.Errorf("failed to scan trust record: %w", err)
		}
		r.FirstSeen = parseTimestamp(first)
		r.LastSeen = parseTimestamp(last)
		records = append(records, r)
	}
	return records, rows.Err()
}

// InsertTrust records a newly trusted fingerprint.
func (d *DB) InsertTrust(ctx context.Context, r TrustRecord) error {
	query := `
	INSERT INTO cert_cache (hostname, address, fingerprint, first_seen, last_seen, count)
	VALUES (?, ?, ?, ?, ?, ?)
	`
	if _, err := d.db.ExecContext(ctx, query, r.Hostname, r.Address, r.Fingerprint,
		formatTimestamp(r.FirstSeen), formatTimestamp(r.LastSeen), r.Count); err != nil {
		return fmt.Errorf("failed to insert trust record: %w", err)
	}
	return nil
}

// TouchTrust increments the counter of a known fingerprint and updates
// its last sighting.
func (d *DB) TouchTrust(ctx context.Context, hostname, address, fingerprint string, seen time.Time) error {
	query := `
	UPDATE cert_cache
	SET last_seen = ?, count = count + 1
	WHERE hostname = ? AND address = ? AND fingerprint = ?
	`
	if _, err := d.db.ExecContext(ctx, query, formatTimestamp(seen), hostname, address, fingerprint); err != nil {
		return fmt.Errorf("failed to update trust record: %w", err)
	}
	return nil
}

// ClientCertFor returns the certificate and key files last shown to host.
func (d *DB) ClientCertFor(ctx context.Context, host string) (certPath, keyPath string, ok bool, err error) {
	err = d.db.QueryRowContext(ctx,
		"SELECT cert_path, key_path FROM client_cert_files WHERE hostname = ?", host).Scan(&certPath, &keyPath)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, fmt.Errorf("failed to query client certificate: %w", err)
	}
	return certPath, keyPath, true, nil
}

// SetClientCert remembers that the certificate in certPath, with its key
// in keyPath, was shown to host.
func (d *DB) SetClientCert(ctx context.Context, host, certPath, keyPath string) error {
	query := `
	INSERT INTO client_cert_files (hostname, cert_path, key_path) VALUES (?, ?, ?)
	ON CONFLICT(hostname) DO UPDATE SET cert_path = excluded.cert_path, key_path = excluded.key_path
	`
	if _, err := d.db.ExecContext(ctx, query, host, certPath, keyPath); err != nil {
		return fmt.Errorf("failed to store client certificate: %w", err)
	}
	return nil
}

// ForgetClientCert removes the certificate remembered for host.
func (d *DB) ForgetClientCert(ctx context.Context, host string) error {
	if _, err := d.db.ExecContext(ctx, "DELETE FROM client_cert_files WHERE hostname = ?", host); err != nil {
		return fmt.Errorf("failed to forget client certificate: %w", err)
	}
	return nil
}

// ForgetClientCertFile removes every host assignment of the certificate
// in certPath.
func (d *DB) ForgetClientCertFile(ctx context.Context, certPath string) error {
	if _, err := d.db.ExecContext(ctx, "DELETE FROM client_cert_files WHERE cert_path = ?", certPath); err != nil {
		return fmt.Errorf("failed to forget client certificate: %w", err)
	}
	return nil
}

// timestampFormats lists the layouts accepted when reading timestamps back.
var timestampFormats = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
