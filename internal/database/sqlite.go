package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"richpres/internal/database/migrations"
	"richpres/internal/model"
	"richpres/internal/presence"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase implements Database using SQLite.
type SQLiteDatabase struct {
	db    *sql.DB
	clock presence.Clock
	path  string
}

var (
	_ Database          = (*SQLiteDatabase)(nil)
	_ presence.Journal  = (*SQLiteDatabase)(nil)
	_ presence.Contacts = (*SQLiteDatabase)(nil)
)

// NewSQLiteDatabase creates a new SQLite database connection.
// path can be a file path or ":memory:" for in-memory database.
// A nil clock uses the real time.
func NewSQLiteDatabase(path string, clock presence.Clock) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if clock == nil {
		clock = presence.RealClock{}
	}
	return &SQLiteDatabase{db: db, clock: clock, path: path}, nil
}

// NewSQLiteDatabaseFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteDatabaseFromDB(db *sql.DB, clock presence.Clock) *SQLiteDatabase {
	if clock == nil {
		clock = presence.RealClock{}
	}
	return &SQLiteDatabase{db: db, clock: clock}
}

// OpenConnection opens and configures a SQLite database connection with appropriate PRAGMAs.
// path can be a file path or ":memory:" for in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every pooled connection to ":memory:" would see its own empty database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	return db, nil
}

// Journal operations

func (s *SQLiteDatabase) RecordRequest(req *model.Request) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`INSERT INTO publish_requests (correlation_id, kind, target, sent_at)
		VALUES (?, ?, ?, ?)`, req.CorrelationID, req.Kind, req.Target, req.SentAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("inserting request: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading request id: %w", err)
	}

	for _, k := range req.Keys {
		_, err := tx.Exec(`INSERT INTO publish_request_keys
			(request_id, position, category, instance, container, version, cleared)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, k.Position, k.Category, k.Instance, k.Container, k.Version, k.Cleared)
		if err != nil {
			return 0, fmt.Errorf("inserting request key %d: %w", k.Position, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing request: %w", err)
	}
	return id, nil
}

func (s *SQLiteDatabase) FinishRequest(id int64, status int, faultCode string, at time.Time) error {
	res, err := s.db.Exec(`UPDATE publish_requests SET status = ?, fault_code = ?, finished_at = ?
		WHERE id = ?`, status, faultCode, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("finishing request %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finishing request %d: no such request", id)
	}
	return nil
}

func (s *SQLiteDatabase) ListRequests(limit int) ([]*model.Request, error) {
	rows, err := s.db.Query(`SELECT id, correlation_id, kind, target, sent_at, status, fault_code, finished_at
		FROM publish_requests ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing requests: %w", err)
	}
	defer rows.Close()

	var result []*model.Request
	byID := make(map[int64]*model.Request)
	for rows.Next() {
		var r model.Request
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.CorrelationID, &r.Kind, &r.Target, &r.SentAt,
			&r.Status, &r.FaultCode, &finished); err != nil {
			return nil, fmt.Errorf("scanning request: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		result = append(result, &r)
		byID[r.ID] = &r
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing requests: %w", err)
	}
	if len(result) == 0 {
		return result, nil
	}

	oldest := result[len(result)-1].ID
	keys, err := s.db.Query(`SELECT request_id, position, category, instance, container, version, cleared
		FROM publish_request_keys WHERE request_id >= ? ORDER BY request_id, position`, oldest)
	if err != nil {
		return nil, fmt.Errorf("listing request keys: %w", err)
	}
	defer keys.Close()
	for keys.Next() {
		var id int64
		var k model.RequestKey
		if err := keys.Scan(&id, &k.Position, &k.Category, &k.Instance, &k.Container, &k.Version, &k.Cleared); err != nil {
			return nil, fmt.Errorf("scanning request key: %w", err)
		}
		if r, ok := byID[id]; ok {
			r.Keys = append(r.Keys, k)
		}
	}
	if err := keys.Err(); err != nil {
		return nil, fmt.Errorf("listing request keys: %w", err)
	}
	return result, nil
}

// Contact operations

const contactColumns = "uri, display_name, blocked, pending_add, updated_at"

func scanContact(row interface{ Scan(...any) error }) (*model.Contact, error) {
	var c model.Contact
	if err := row.Scan(&c.URI, &c.DisplayName, &c.Blocked, &c.PendingAdd, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *SQLiteDatabase) List() ([]*model.Contact, error) {
	rows, err := s.db.Query("SELECT " + contactColumns + " FROM contacts ORDER BY uri")
	if err != nil {
		return nil, fmt.Errorf("listing contacts: %w", err)
	}
	defer rows.Close()

	var result []*model.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning contact: %w", err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing contacts: %w", err)
	}
	return result, nil
}

func (s *SQLiteDatabase) Find(uri string) (*model.Contact, error) {
	c, err := scanContact(s.db.QueryRow("SELECT "+contactColumns+" FROM contacts WHERE uri = ?", uri))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding contact %s: %w", uri, err)
	}
	return c, nil
}

// SetBlocked and SetDisplayName ignore unknown contacts.

func (s *SQLiteDatabase) SetBlocked(uri string, blocked bool) error {
	return s.updateContact(uri, "blocked = ?", blocked)
}

func (s *SQLiteDatabase) SetDisplayName(uri, name string) error {
	return s.updateContact(uri, "display_name = ?", name)
}

func (s *SQLiteDatabase) updateContact(uri, set string, value any) error {
	_, err := s.db.Exec("UPDATE contacts SET "+set+", updated_at = ? WHERE uri = ?",
		value, s.clock.Now().UTC(), uri)
	if err != nil {
		return fmt.Errorf("updating contact %s: %w", uri, err)
	}
	return nil
}

// RequestAdd records a pending addition of uri. An existing contact keeps
// its entry and only has its display name filled in when empty.
func (s *SQLiteDatabase) RequestAdd(uri, displayName string) error {
	_, err := s.db.Exec(`INSERT INTO contacts (uri, display_name, pending_add, updated_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(uri) DO UPDATE SET
			display_name = CASE WHEN contacts.display_name = '' THEN excluded.display_name ELSE contacts.display_name END,
			updated_at = excluded.updated_at`,
		uri, displayName, s.clock.Now().UTC())
	if err != nil {
		return fmt.Errorf("adding contact %s: %w", uri, err)
	}
	return nil
}

func (s *SQLiteDatabase) UpsertContact(c *model.Contact) error {
	updated := c.UpdatedAt
	if updated.IsZero() {
		updated = s.clock.Now()
	}
	_, err := s.db.Exec(`INSERT INTO contacts (`+contactColumns+`) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(uri) DO UPDATE SET
			display_name = excluded.display_name,
			blocked = excluded.blocked,
			pending_add = excluded.pending_add,
			updated_at = excluded.updated_at`,
		c.URI, c.DisplayName, c.Blocked, c.PendingAdd, updated.UTC())
	if err != nil {
		return fmt.Errorf("saving contact %s: %w", c.URI, err)
	}
	return nil
}

func (s *SQLiteDatabase) DeleteContact(uri string) error {
	if _, err := s.db.Exec("DELETE FROM contacts WHERE uri = ?", uri); err != nil {
		return fmt.Errorf("deleting contact %s: %w", uri, err)
	}
	return nil
}

// Maintenance

func (s *SQLiteDatabase) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// SchemaStatus reports the schema version. A database that was never
// migrated yields migrations.ErrNoVersion.
func (s *SQLiteDatabase) SchemaStatus() (migrations.Status, error) {
	return migrations.ReadStatus(s.db)
}

// Migrate applies pending migrations.
func (s *SQLiteDatabase) Migrate() error {
	return migrations.MigrateUp(s.db)
}

// BackupTo creates a complete copy of the database at destPath using VACUUM INTO.
func (s *SQLiteDatabase) BackupTo(destPath string) error {
	if _, err := s.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
