package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"aksara/internal/models"
)

// Store persists the session between runs. The gateway reads the token from it on every request.
type Store interface {
	Token() string
	RefreshToken() string
	User() *models.User
	Save(accessToken, refreshToken string, user *models.User) error
	SaveToken(accessToken string) error
	SaveUser(user *models.User) error
	Clear() error
}

type storedSession struct {
	AccessToken  string       `json:"access_token,omitempty"`
	RefreshToken string       `json:"refresh_token,omitempty"`
	User         *models.User `json:"user,omitempty"`
}

// MemoryStore keeps the session in memory only.
type MemoryStore struct {
	mu      sync.RWMutex
	session storedSession
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.AccessToken
}

func (s *MemoryStore) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.RefreshToken
}

func (s *MemoryStore) User() *models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyUser(s.session.User)
}

func (s *MemoryStore) Save(accessToken, refreshToken string, user *models.User) error {
	s.mu.Lock()
	s.session = storedSession{AccessToken: accessToken, RefreshToken: refreshToken, User: copyUser(user)}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) SaveToken(accessToken string) error {
	s.mu.Lock()
	s.session.AccessToken = accessToken
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) SaveUser(user *models.User) error {
	s.mu.Lock()
	s.session.User = copyUser(user)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	s.session = storedSession{}
	s.mu.Unlock()
	return nil
}

// FileStore keeps the session in a JSON file readable only by the owner.
type FileStore struct {
	path string
	mem  MemoryStore
	mu   sync.Mutex
}

// NewFileStore loads path when it exists. A corrupt file is treated as an empty session.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if jsonErr := json.Unmarshal(data, &s.mem.session); jsonErr != nil {
			s.mem.session = storedSession{}
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read session file: %w", err)
	}
	return s, nil
}

func (s *FileStore) Token() string        { return s.mem.Token() }
func (s *FileStore) RefreshToken() string { return s.mem.RefreshToken() }
func (s *FileStore) User() *models.User   { return s.mem.User() }

func (s *FileStore) Save(accessToken, refreshToken string, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.mem.Save(accessToken, refreshToken, user)
	return s.flushLocked()
}

func (s *FileStore) SaveToken(accessToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.mem.SaveToken(accessToken)
	return s.flushLocked()
}

func (s *FileStore) SaveUser(user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.mem.SaveUser(user)
	return s.flushLocked()
}

func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.mem.Clear()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}

func (s *FileStore) flushLocked() error {
	s.mem.mu.RLock()
	data, err := json.MarshalIndent(s.mem.session, "", "  ")
	s.mem.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}

func copyUser(u *models.User) *models.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
