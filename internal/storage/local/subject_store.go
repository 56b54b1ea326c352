package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/paespro/lectoguia/internal/domain"
)

var ErrInvalidUserID = errors.New("invalid user id")

var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9._@-]{1,128}$`)

// record is the on-disk shape of a user's selection.
type record struct {
	Identity  domain.Identity `json:"identity"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// SubjectStore keeps each user's last subject identity as a JSON file so
// sessions survive a daemon restart.
type SubjectStore struct {
	basePath string
	mu       sync.RWMutex
}

// NewSubjectStore creates the store directory if needed.
func NewSubjectStore(basePath string) (*SubjectStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return &SubjectStore{basePath: basePath}, nil
}

func (s *SubjectStore) path(userID string) (string, error) {
	if !userIDPattern.MatchString(userID) || strings.Trim(userID, ".") == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidUserID, userID)
	}
	return filepath.Join(s.basePath, userID+".json"), nil
}

// SaveIdentity writes the identity atomically.
func (s *SubjectStore) SaveIdentity(_ context.Context, userID string, id domain.Identity) error {
	path, err := s.path(userID)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(record{Identity: id, UpdatedAt: time.Now().UTC()}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.basePath, ".subject-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// LoadIdentity returns the stored identity. found is false when the user
// never picked a subject.
func (s *SubjectStore) LoadIdentity(_ context.Context, userID string) (id domain.Identity, found bool, err error) {
	path, err := s.path(userID)
	if err != nil {
		return domain.Identity{}, false, err
	}

	s.mu.RLock()
	data, err := os.ReadFile(path)
	s.mu.RUnlock()
	if errors.Is(err, os.ErrNotExist) {
		return domain.Identity{}, false, nil
	}
	if err != nil {
		return domain.Identity{}, false, fmt.Errorf("read file: %w", err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.Identity{}, false, fmt.Errorf("decode json: %w", err)
	}
	return rec.Identity, true, nil
}

// Users lists every user with a stored identity.
func (s *SubjectStore) Users() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}

	var users []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ".json" {
			continue
		}
		users = append(users, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(users)
	return users, nil
}
