package core

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrUserExists = errors.New("user already exists")
)

type (
	// Notebook is a collaboratively edited document. Content is opaque JSON.
	Notebook struct {
		ID        string          `json:"id"`
		Title     string          `json:"title"`
		Content   json.RawMessage `json:"content,omitempty"`
		Owner     string          `json:"owner"`
		CreatedAt time.Time       `json:"created_at"`
		UpdatedAt time.Time       `json:"updated_at"`
	}

	AuditEntry struct {
		ID         int64           `json:"id"`
		NotebookID string          `json:"notebook_id"`
		Action     string          `json:"action"`
		Who        string          `json:"who"`
		Timestamp  time.Time       `json:"ts"`
		Details    json.RawMessage `json:"details,omitempty"`
	}

	// NotebookStore persists notebooks and their audit trail.
	NotebookStore interface {
		// List returns every notebook without its content, most recently
		// updated first.
		List(ctx context.Context) ([]*Notebook, error)
		Get(ctx context.Context, id string) (*Notebook, error)
		// Save creates the notebook when ID is empty and updates it otherwise.
		// It records who did it in the audit trail and returns the id together
		// with the audit action ("create" or "update").
		Save(ctx context.Context, notebook *Notebook, who string) (string, string, error)
		Audit(ctx context.Context, notebookID string) ([]AuditEntry, error)
	}

	User struct {
		ID           int64
		Username     string
		PasswordHash []byte
	}

	UserStore interface {
		CreateUser(ctx context.Context, username, password string) error
		// Authenticate reports whether password matches the stored hash.
		Authenticate(ctx context.Context, username, password string) (bool, error)
	}

	QueryResult struct {
		Columns []string         `json:"columns"`
		Rows    []map[string]any `json:"rows"`
	}

	// QueryRunner executes read-only ad-hoc queries against the backing
	// database. Only SQL-backed stores implement it.
	QueryRunner interface {
		RunQuery(ctx context.Context, query string) (*QueryResult, error)
		SeedDemoData(ctx context.Context) error
	}
)

const (
	AuditCreate = "create"
	AuditUpdate = "update"
)
