package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"notebook-server/core"
	"strings"
	"time"

	"database/sql"
	stdlog "log"

	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

type documentStore struct {
	db *sql.DB
	// reader runs ad-hoc queries; nil for in-memory databases, which have
	// no file a second handle could open.
	reader *sql.DB
	now    func() time.Time
}

func NewDocumentStore(dataSourceName string) *documentStore {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		stdlog.Fatal(err)
	}
	// A single connection serialises writers and keeps ":memory:" databases
	// visible to every query.
	db.SetMaxOpenConns(1)

	// Create users table
	usersTable := `CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT UNIQUE NOT NULL,
		password_hash BLOB NOT NULL
	);`
	if _, err = db.Exec(usersTable); err != nil {
		stdlog.Fatal(err)
	}

	// Create notebooks table
	notebooksTable := `CREATE TABLE IF NOT EXISTS notebooks (
		id TEXT PRIMARY KEY,
		title TEXT,
		content BLOB,
		owner TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);`
	if _, err = db.Exec(notebooksTable); err != nil {
		stdlog.Fatal(err)
	}

	// Create audit table
	auditTable := `CREATE TABLE IF NOT EXISTS audit (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		notebook_id TEXT NOT NULL,
		action TEXT NOT NULL,
		who TEXT,
		ts INTEGER NOT NULL,
		details TEXT
	);`
	if _, err = db.Exec(auditTable); err != nil {
		stdlog.Fatal(err)
	}

	store := &documentStore{db: db, now: time.Now}
	if !isMemory(dataSourceName) {
		reader, err := sql.Open("sqlite3", readOnlyDSN(dataSourceName))
		if err != nil {
			stdlog.Fatal(err)
		}
		store.reader = reader
	}
	return store
}

// Close releases both database handles.
func (s *documentStore) Close() error {
	if s.reader != nil {
		if err := s.reader.Close(); err != nil {
			return err
		}
	}
	return s.db.Close()
}

func isMemory(dsn string) bool {
	return dsn == ":memory:" || strings.HasPrefix(dsn, "file::memory:") || strings.Contains(dsn, "mode=memory")
}

// readOnlyDSN opens dsn as a URI that refuses writes at both the file and
// the connection level.
func readOnlyDSN(dsn string) string {
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "mode=ro&_query_only=1&_busy_timeout=5000"
}

func (s *documentStore) List(ctx context.Context) ([]*core.Notebook, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, title, owner, created_at, updated_at FROM notebooks ORDER BY updated_at DESC, id DESC")
	if err != nil {
		logrus.WithField("error", err).Error("Failed to list notebooks")
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			logrus.WithError(cerr).Warn("Failed to close notebook rows")
		}
	}()

	var notebooks []*core.Notebook
	for rows.Next() {
		var nb core.Notebook
		var title, owner sql.NullString
		var createdAt, updatedAt int64
		if err := rows.Scan(&nb.ID, &title, &owner, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		nb.Title = title.String
		nb.Owner = owner.String
		nb.CreatedAt = time.UnixMilli(createdAt)
		nb.UpdatedAt = time.UnixMilli(updatedAt)
		notebooks = append(notebooks, &nb)
	}
	return notebooks, rows.Err()
}

func (s *documentStore) Get(ctx context.Context, id string) (*core.Notebook, error) {
	log := logrus.WithField("notebook_id", id)
	log.Debug("Retrieving notebook by ID")

	nb := core.Notebook{ID: id}
	var title, owner sql.NullString
	var content []byte
	var createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx,
		"SELECT title, content, owner, created_at, updated_at FROM notebooks WHERE id = ?", id).
		Scan(&title, &content, &owner, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			log.WithField("error", "notebook not found").Warn("Notebook with specified ID not found")
			return nil, fmt.Errorf("notebook with id %s: %w", id, core.ErrNotFound)
		}
		log.WithField("error", err).Error("Failed to retrieve notebook")
		return nil, err
	}

	nb.Title = title.String
	nb.Owner = owner.String
	nb.Content = json.RawMessage(content)
	nb.CreatedAt = time.UnixMilli(createdAt)
	nb.UpdatedAt = time.UnixMilli(updatedAt)

	log.Info("Notebook retrieved successfully")
	return &nb, nil
}

func (s *documentStore) Save(ctx context.Context, notebook *core.Notebook, who string) (string, string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", "", err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	ts := s.now().UnixMilli()
	id := notebook.ID
	action := core.AuditCreate
	content := []byte(notebook.Content)

	if id == "" {
		id = ulid.Make().String()
		_, err = tx.ExecContext(ctx,
			"INSERT INTO notebooks (id, title, content, owner, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
			id, notebook.Title, content, who, ts, ts)
	} else {
		action = core.AuditUpdate
		var result sql.Result
		result, err = tx.ExecContext(ctx,
			"UPDATE notebooks SET title = ?, content = ?, updated_at = ? WHERE id = ?",
			notebook.Title, content, ts, id)
		if err == nil {
			var affected int64
			if affected, err = result.RowsAffected(); err == nil && affected == 0 {
				return "", "", fmt.Errorf("notebook with id %s: %w", id, core.ErrNotFound)
			}
		}
	}

	log := logrus.WithFields(logrus.Fields{
		"notebook_id": id,
		"action":      action,
		"data_length": len(content),
	})
	if err != nil {
		log.WithField("error", err).Error("Failed to save notebook")
		return "", "", err
	}

	details, _ := json.Marshal(map[string]string{"title": notebook.Title})
	_, err = tx.ExecContext(ctx,
		"INSERT INTO audit (notebook_id, action, who, ts, details) VALUES (?, ?, ?, ?, ?)",
		id, action, who, ts, string(details))
	if err != nil {
		log.WithField("error", err).Error("Failed to record audit entry")
		return "", "", err
	}

	if err = tx.Commit(); err != nil {
		return "", "", err
	}

	log.Info("Notebook saved successfully")
	return id, action, nil
}

func (s *documentStore) Audit(ctx context.Context, notebookID string) ([]core.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, notebook_id, action, who, ts, details FROM audit WHERE notebook_id = ? ORDER BY id ASC", notebookID)
	if err != nil {
		logrus.WithField("error", err).Error("Failed to list audit entries")
		return nil, err
	}
	defer rows.Close()

	var entries []core.AuditEntry
	for rows.Next() {
		var entry core.AuditEntry
		var who, details sql.NullString
		var ts int64
		if err := rows.Scan(&entry.ID, &entry.NotebookID, &entry.Action, &who, &ts, &details); err != nil {
			return nil, err
		}
		entry.Who = who.String
		entry.Timestamp = time.UnixMilli(ts)
		if details.Valid {
			entry.Details = json.RawMessage(details.String)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *documentStore) CreateUser(ctx context.Context, username, password string) error {
	if username == "" {
		return fmt.Errorf("username is required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	var exists int
	err = s.db.QueryRowContext(ctx, "SELECT 1 FROM users WHERE username = ?", username).Scan(&exists)
	if err == nil {
		return fmt.Errorf("user %s: %w", username, core.ErrUserExists)
	}
	if err != sql.ErrNoRows {
		return err
	}

	if _, err = s.db.ExecContext(ctx, "INSERT INTO users (username, password_hash) VALUES (?, ?)", username, hash); err != nil {
		logrus.WithFields(logrus.Fields{"username": username, "error": err}).Error("Failed to create user")
		return err
	}

	logrus.WithField("username", username).Info("User created successfully")
	return nil
}

func (s *documentStore) Authenticate(ctx context.Context, username, password string) (bool, error) {
	var hash []byte
	err := s.db.QueryRowContext(ctx, "SELECT password_hash FROM users WHERE username = ?", username).Scan(&hash)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil, nil
}
