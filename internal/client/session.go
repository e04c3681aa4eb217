package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Session holds the credentials the API client and socket authenticate with.
// It is loaded once with Init and wiped with Clear on logout.
type Session struct {
	path string

	mu     sync.RWMutex
	token  string
	userID int
}

type sessionFile struct {
	Token  string `json:"token"`
	UserID int    `json:"user_id"`
}

func NewSession(path string) *Session {
	return &Session{path: path}
}

// Init loads the stored session. A missing file leaves the session empty.
func (s *Session) Init() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read session: %w", err)
	}
	var f sessionFile
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("decode session: %w", err)
	}
	s.mu.Lock()
	s.token, s.userID = f.Token, f.UserID
	s.mu.Unlock()
	return nil
}

func (s *Session) Save(token string, userID int) error {
	data, err := json.Marshal(sessionFile{Token: token, UserID: userID})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	s.mu.Lock()
	s.token, s.userID = token, userID
	s.mu.Unlock()
	return nil
}

func (s *Session) Clear() error {
	s.mu.Lock()
	s.token, s.userID = "", 0
	s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Session) UserID() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

func (s *Session) LoggedIn() bool {
	return s.Token() != ""
}
