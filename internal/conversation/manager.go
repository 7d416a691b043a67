package conversation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message of a conversation.
type Turn struct {
	Role    Role
	Content string
}

// Completer produces the next assistant reply for a history that ends with the
// user's latest message.
type Completer interface {
	Complete(ctx context.Context, history []Turn) (string, error)
}

type CompleterFunc func(ctx context.Context, history []Turn) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, history []Turn) (string, error) {
	return f(ctx, history)
}

type Options struct {
	// MaxTokenBudget bounds the approximate token size of a history after a
	// reply is recorded. Zero or less disables trimming.
	MaxTokenBudget int
	// Estimator defaults to CharEstimator{CharsPerToken: DefaultCharsPerToken}.
	Estimator Estimator
}

type session struct {
	turns []Turn
}

// Manager owns the per-user conversation histories. Calls for different users
// may run concurrently; calls for the same user are expected to be serialized
// by the caller.
type Manager struct {
	mu        sync.Mutex
	sessions  map[string]*session
	budget    float64
	estimator Estimator
	logger    *slog.Logger
}

func NewManager(opts Options, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	est := opts.Estimator
	if est == nil {
		est = CharEstimator{CharsPerToken: DefaultCharsPerToken}
	}
	return &Manager{
		sessions:  make(map[string]*session),
		budget:    float64(opts.MaxTokenBudget),
		estimator: est,
		logger:    logger.With("component", "conversation"),
	}
}

// sessionLocked returns the user's session, creating it on first use.
// m.mu must be held.
func (m *Manager) sessionLocked(username string) *session {
	s, ok := m.sessions[username]
	if !ok {
		m.logger.Info("creating new chat history", "user", username)
		s = &session{}
		m.sessions[username] = s
	}
	return s
}

// GetHistory returns a copy of the user's turns.
func (m *Manager) GetHistory(username string) []Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sessionLocked(username)
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

func (m *Manager) AppendUserTurn(username, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sessionLocked(username)
	s.turns = append(s.turns, Turn{Role: RoleUser, Content: text})
}

// RecordReply appends an assistant turn and trims the history to the token
// budget. It returns the number of evicted turns.
func (m *Manager) RecordReply(username, reply string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sessionLocked(username)
	s.turns = append(s.turns, Turn{Role: RoleAssistant, Content: reply})
	evicted, total := m.trimLocked(s)
	if evicted > 0 {
		m.logger.Info("history trimmed", "user", username, "evicted", evicted, "remaining", len(s.turns), "tokens", total)
	}
	return evicted
}

// Clear empties the user's history. The user's entry is kept.
func (m *Manager) Clear(username string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sessionLocked(username)
	s.turns = nil
	m.logger.Info("cleared conversation history", "user", username)
}

// ApproxTokens returns the estimated size of the user's history.
func (m *Manager) ApproxTokens(username string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total float64
	for _, t := range m.sessionLocked(username).turns {
		total += m.estimator.Estimate(t.Content)
	}
	return total
}

// Users returns the number of users with a history entry.
func (m *Manager) Users() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Respond appends text as a user turn, asks c for a reply and records it.
// When c fails the user turn stays in the history and no assistant turn is
// added.
func (m *Manager) Respond(ctx context.Context, username, text string, c Completer) (string, error) {
	m.AppendUserTurn(username, text)

	reply, err := c.Complete(ctx, m.GetHistory(username))
	if err != nil {
		return "", asCompletionError(ctx, err)
	}
	if strings.TrimSpace(reply) == "" {
		return "", ErrEmptyReply
	}

	m.RecordReply(username, reply)
	return reply, nil
}

// trimLocked evicts turns from the front, one at a time, until the history
// fits the budget or is empty. m.mu must be held.
func (m *Manager) trimLocked(s *session) (int, float64) {
	var total float64
	for _, t := range s.turns {
		total += m.estimator.Estimate(t.Content)
	}
	if m.budget <= 0 {
		return 0, total
	}

	drop := 0
	for total > m.budget && drop < len(s.turns) {
		total -= m.estimator.Estimate(s.turns[drop].Content)
		drop++
	}
	if drop == 0 {
		return 0, total
	}
	if drop == len(s.turns) {
		s.turns = nil
		return drop, 0
	}
	s.turns = append([]Turn(nil), s.turns[drop:]...)
	return drop, total
}

func asCompletionError(ctx context.Context, err error) error {
	var ce *CompletionError
	if errors.As(err, &ce) {
		return ce
	}
	timeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)
	return &CompletionError{Reason: err.Error(), Timeout: timeout, Err: err}
}
