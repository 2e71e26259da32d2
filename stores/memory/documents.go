package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"notebook-server/core"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

type documentStore struct {
	mu        sync.RWMutex
	notebooks map[string]core.Notebook
	audit     []core.AuditEntry
	users     map[string]core.User
	now       func() time.Time
}

func NewDocumentStore() *documentStore {
	return &documentStore{
		notebooks: make(map[string]core.Notebook),
		users:     make(map[string]core.User),
		now:       time.Now,
	}
}

func (s *documentStore) List(ctx context.Context) ([]*core.Notebook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	notebooks := make([]*core.Notebook, 0, len(s.notebooks))
	for _, nb := range s.notebooks {
		summary := nb
		summary.Content = nil
		notebooks = append(notebooks, &summary)
	}

	sort.Slice(notebooks, func(i, j int) bool {
		if notebooks[i].UpdatedAt.Equal(notebooks[j].UpdatedAt) {
			return notebooks[i].ID > notebooks[j].ID
		}
		return notebooks[i].UpdatedAt.After(notebooks[j].UpdatedAt)
	})

	return notebooks, nil
}

func (s *documentStore) Get(ctx context.Context, id string) (*core.Notebook, error) {
	log := logrus.WithField("notebook_id", id)

	s.mu.RLock()
	nb, ok := s.notebooks[id]
	s.mu.RUnlock()

	if ok {
		log.Info("Notebook retrieved successfully")
		return &nb, nil
	}

	log.WithField("error", "notebook not found").Warn("Notebook with specified ID not found")
	return nil, fmt.Errorf("notebook with id %s: %w", id, core.ErrNotFound)
}

func (s *documentStore) Save(ctx context.Context, notebook *core.Notebook, who string) (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.now()
	nb := *notebook
	action := core.AuditCreate

	if nb.ID == "" {
		nb.ID = ulid.Make().String()
		nb.Owner = who
		nb.CreatedAt = ts
	} else {
		existing, ok := s.notebooks[nb.ID]
		if !ok {
			return "", "", fmt.Errorf("notebook with id %s: %w", nb.ID, core.ErrNotFound)
		}
		nb.Owner = existing.Owner
		nb.CreatedAt = existing.CreatedAt
		action = core.AuditUpdate
	}
	nb.UpdatedAt = ts
	s.notebooks[nb.ID] = nb

	details, _ := json.Marshal(map[string]string{"title": nb.Title})
	s.audit = append(s.audit, core.AuditEntry{
		ID:         int64(len(s.audit) + 1),
		NotebookID: nb.ID,
		Action:     action,
		Who:        who,
		Timestamp:  ts,
		Details:    details,
	})

	logrus.WithFields(logrus.Fields{
		"notebook_id": nb.ID,
		"action":      action,
		"data_length": len(nb.Content),
	}).Info("Notebook saved successfully")

	return nb.ID, action, nil
}

func (s *documentStore) Audit(ctx context.Context, notebookID string) ([]core.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []core.AuditEntry
	for _, entry := range s.audit {
		if entry.NotebookID == notebookID {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func (s *documentStore) CreateUser(ctx context.Context, username, password string) error {
	if username == "" {
		return fmt.Errorf("username is required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[username]; exists {
		return fmt.Errorf("user %s: %w", username, core.ErrUserExists)
	}
	s.users[username] = core.User{
		ID:           int64(len(s.users) + 1),
		Username:     username,
		PasswordHash: hash,
	}

	logrus.WithField("username", username).Info("User created successfully")
	return nil
}

func (s *documentStore) Authenticate(ctx context.Context, username, password string) (bool, error) {
	s.mu.RLock()
	user, ok := s.users[username]
	s.mu.RUnlock()

	if !ok {
		return false, nil
	}
	return bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)) == nil, nil
}
