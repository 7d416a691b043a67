package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// User is a single allow-list record. Only Username takes part in membership
// checks; the remaining fields are informational.
type User struct {
	Username string    `json:"username"`
	AddedAt  time.Time `json:"added_at,omitempty"`
	AddedBy  string    `json:"added_by,omitempty"`
}

// Store persists the allow-list as a whole. SaveAll replaces everything
// previously stored.
type Store interface {
	Load() ([]User, error)
	SaveAll(users []User) error
}

// AdminSource yields the bootstrap admin username when no allow-list exists yet.
// An empty result means no admin could be determined.
type AdminSource func() (string, error)

// StaticAdmin returns an AdminSource that always yields name.
func StaticAdmin(name string) AdminSource {
	return func() (string, error) { return name, nil }
}

// ConfigError reports a startup configuration problem the bot cannot recover from.
type ConfigError struct {
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config: %s: %v", e.Reason, e.Err)
	}
	return "config: " + e.Reason
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ErrNoAdmin is wrapped by the ConfigError returned when bootstrap has no admin.
var ErrNoAdmin = errors.New("no admin specified")

// ErrEmptyUsername is returned by Add when nothing is left after normalization.
var ErrEmptyUsername = errors.New("empty username")

type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time

	mu    sync.RWMutex
	users []User
	index map[string]struct{}
}

func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		logger: logger.With("component", "allowlist"),
		now:    time.Now,
		index:  make(map[string]struct{}),
	}
}

// NormalizeUsername strips a single leading '@'.
func NormalizeUsername(username string) string {
	return strings.TrimPrefix(username, "@")
}

// Load reads the persisted allow-list. An empty or unreadable store triggers
// a bootstrap with the admin returned by admin.
func (s *Service) Load(admin AdminSource) ([]User, error) {
	users, err := s.store.Load()
	if err != nil {
		s.logger.Error("failed to read allow-list, bootstrapping", "err", err)
	}
	if err == nil && len(users) > 0 {
		s.replace(users)
		s.logger.Info("allow-list loaded", "users", len(users))
		return s.List(), nil
	}

	if admin == nil {
		return nil, &ConfigError{Reason: "bootstrap", Err: ErrNoAdmin}
	}
	name, aerr := admin()
	if aerr != nil {
		return nil, &ConfigError{Reason: "read admin username", Err: aerr}
	}
	return s.Bootstrap(name)
}

// Bootstrap creates a single-member allow-list holding the admin and persists it.
func (s *Service) Bootstrap(admin string) ([]User, error) {
	admin = NormalizeUsername(strings.TrimSpace(admin))
	if admin == "" {
		return nil, &ConfigError{Reason: "bootstrap", Err: ErrNoAdmin}
	}
	users := []User{{Username: admin, AddedAt: s.now().UTC()}}
	if err := s.store.SaveAll(users); err != nil {
		return nil, fmt.Errorf("persist allow-list: %w", err)
	}
	s.replace(users)
	s.logger.Info("bot admin configured", "admin", admin)
	return s.List(), nil
}

func (s *Service) IsAllowed(username string) bool {
	if username == "" {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[username]
	return ok
}

// Add inserts username and rewrites the store. It reports false without any
// change when the user is already present.
func (s *Service) Add(username, addedBy string) (bool, error) {
	username = NormalizeUsername(strings.TrimSpace(username))
	if username == "" {
		return false, ErrEmptyUsername
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[username]; ok {
		s.logger.Info("user already in allowed list", "user", username)
		return false, nil
	}

	next := make([]User, len(s.users), len(s.users)+1)
	copy(next, s.users)
	next = append(next, User{Username: username, AddedAt: s.now().UTC(), AddedBy: addedBy})
	if err := s.store.SaveAll(next); err != nil {
		return false, fmt.Errorf("persist allow-list: %w", err)
	}
	s.users = next
	s.index[username] = struct{}{}
	s.logger.Info("added new user to allowed list", "user", username, "by", addedBy)
	return true, nil
}

// Admin returns the bootstrap admin, which is always the first record.
func (s *Service) Admin() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.users) == 0 {
		return "", false
	}
	return s.users[0].Username, true
}

func (s *Service) List() []User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]User, len(s.users))
	copy(out, s.users)
	return out
}

func (s *Service) replace(users []User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = make([]User, 0, len(users))
	s.index = make(map[string]struct{}, len(users))
	for _, u := range users {
		if _, dup := s.index[u.Username]; dup || u.Username == "" {
			continue
		}
		s.index[u.Username] = struct{}{}
		s.users = append(s.users, u)
	}
}
