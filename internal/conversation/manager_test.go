package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echo(prefix string) CompleterFunc {
	return func(_ context.Context, h []Turn) (string, error) {
		return prefix + h[len(h)-1].Content, nil
	}
}

// unit estimator: one token per character
func newUnitManager(budget int) *Manager {
	return NewManager(Options{MaxTokenBudget: budget, Estimator: CharEstimator{CharsPerToken: 1}}, nil)
}

func TestHistoryAppendGetClear(t *testing.T) {
	m := newUnitManager(0)

	m.AppendUserTurn("alice", "hello")
	m.RecordReply("alice", "hi")
	m.AppendUserTurn("bob", "foo")
	m.RecordReply("bob", "bar")

	a := m.GetHistory("alice")
	b := m.GetHistory("bob")
	require.Len(t, a, 2)
	require.Len(t, b, 2)
	assert.Equal(t, Turn{Role: RoleUser, Content: "hello"}, a[0])
	assert.Equal(t, Turn{Role: RoleAssistant, Content: "hi"}, a[1])
	assert.Equal(t, Turn{Role: RoleUser, Content: "foo"}, b[0])
	assert.Equal(t, Turn{Role: RoleAssistant, Content: "bar"}, b[1])

	a[0] = Turn{Role: RoleUser, Content: "mutated"}
	assert.Equal(t, "hello", m.GetHistory("alice")[0].Content, "internal state mutated via returned slice")

	m.Clear("alice")
	assert.Empty(t, m.GetHistory("alice"))
	assert.Len(t, m.GetHistory("bob"), 2, "clear must not affect other users")
	assert.Equal(t, 2, m.Users(), "clear keeps the user entry")
}

func TestGetHistoryCreatesOnce(t *testing.T) {
	m := newUnitManager(0)
	assert.Empty(t, m.GetHistory("ghost"))
	assert.Empty(t, m.GetHistory("ghost"))
	assert.Equal(t, 1, m.Users())
}

func TestClearUnknownUser(t *testing.T) {
	m := newUnitManager(0)
	m.Clear("nobody")
	assert.Empty(t, m.GetHistory("nobody"))
}

func TestRespondAppendsPair(t *testing.T) {
	m := newUnitManager(0)
	m.AppendUserTurn("u", "earlier")
	m.RecordReply("u", "ok")

	reply, err := m.Respond(context.Background(), "u", "hi", echo("re: "))
	require.NoError(t, err)
	assert.Equal(t, "re: hi", reply)

	h := m.GetHistory("u")
	require.Len(t, h, 4)
	assert.Equal(t, Turn{Role: RoleUser, Content: "hi"}, h[2])
	assert.Equal(t, Turn{Role: RoleAssistant, Content: "re: hi"}, h[3])
}

func TestRespondPassesFullHistory(t *testing.T) {
	m := newUnitManager(0)
	var seen []Turn
	c := CompleterFunc(func(_ context.Context, h []Turn) (string, error) {
		seen = h
		return "answer", nil
	})

	_, err := m.Respond(context.Background(), "u", "one", c)
	require.NoError(t, err)
	_, err = m.Respond(context.Background(), "u", "two", c)
	require.NoError(t, err)

	require.Len(t, seen, 3)
	assert.Equal(t, "one", seen[0].Content)
	assert.Equal(t, RoleAssistant, seen[1].Role)
	assert.Equal(t, Turn{Role: RoleUser, Content: "two"}, seen[2])
}

func TestRespondCompletionFailureKeepsQuestion(t *testing.T) {
	m := newUnitManager(1)
	m.AppendUserTurn("u", "a very long earlier question")

	boom := errors.New("quota exceeded")
	_, err := m.Respond(context.Background(), "u", "hi", CompleterFunc(func(context.Context, []Turn) (string, error) {
		return "", boom
	}))

	var ce *CompletionError
	require.ErrorAs(t, err, &ce)
	assert.False(t, ce.Timeout)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrEmptyReply)

	h := m.GetHistory("u")
	require.Len(t, h, 2, "no trimming after a failed completion")
	assert.Equal(t, Turn{Role: RoleUser, Content: "hi"}, h[1])
	for _, turn := range h {
		assert.Equal(t, RoleUser, turn.Role)
	}
}

func TestRespondConsecutiveUserTurnsAfterFailure(t *testing.T) {
	m := newUnitManager(0)
	fail := CompleterFunc(func(context.Context, []Turn) (string, error) { return "", errors.New("down") })

	_, err := m.Respond(context.Background(), "u", "first", fail)
	require.Error(t, err)
	reply, err := m.Respond(context.Background(), "u", "second", echo(""))
	require.NoError(t, err)
	assert.Equal(t, "second", reply)

	h := m.GetHistory("u")
	require.Len(t, h, 3)
	assert.Equal(t, RoleUser, h[0].Role)
	assert.Equal(t, RoleUser, h[1].Role)
	assert.Equal(t, RoleAssistant, h[2].Role)
}

func TestRespondTimeout(t *testing.T) {
	m := newUnitManager(0)
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()

	_, err := m.Respond(ctx, "u", "hi", CompleterFunc(func(ctx context.Context, _ []Turn) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}))

	var ce *CompletionError
	require.ErrorAs(t, err, &ce)
	assert.True(t, ce.Timeout)
}

func TestRespondPreservesCompletionError(t *testing.T) {
	m := newUnitManager(0)
	orig := &CompletionError{Reason: "malformed response"}
	_, err := m.Respond(context.Background(), "u", "hi", CompleterFunc(func(context.Context, []Turn) (string, error) {
		return "", orig
	}))
	var ce *CompletionError
	require.ErrorAs(t, err, &ce)
	assert.Same(t, orig, ce)
}

func TestRespondEmptyReply(t *testing.T) {
	for _, out := range []string{"", "  \n"} {
		m := newUnitManager(0)
		_, err := m.Respond(context.Background(), "u", "hi", CompleterFunc(func(context.Context, []Turn) (string, error) {
			return out, nil
		}))
		require.ErrorIs(t, err, ErrEmptyReply)
		var ce *CompletionError
		assert.False(t, errors.As(err, &ce), "empty reply must not look like a completion error")

		h := m.GetHistory("u")
		require.Len(t, h, 1)
		assert.Equal(t, RoleUser, h[0].Role)
	}
}

func TestTrimEvictsOldestUntilWithinBudget(t *testing.T) {
	m := newUnitManager(10)
	m.AppendUserTurn("u", "aaaa")
	m.RecordReply("u", "bbbb")
	m.AppendUserTurn("u", "cc")

	evicted := m.RecordReply("u", "dd")
	assert.Equal(t, 1, evicted)

	h := m.GetHistory("u")
	require.Len(t, h, 3)
	assert.Equal(t, "bbbb", h[0].Content)
	assert.LessOrEqual(t, m.ApproxTokens("u"), 10.0)
}

func TestTrimNonUniformTurns(t *testing.T) {
	m := newUnitManager(12)
	m.AppendUserTurn("u", "a")
	m.RecordReply("u", strings.Repeat("b", 9))
	m.AppendUserTurn("u", "c")
	// total 11, within budget
	assert.Len(t, m.GetHistory("u"), 3)

	evicted := m.RecordReply("u", "dd")
	// 13 > 12: dropping "a" leaves 12, which fits
	assert.Equal(t, 1, evicted)
	assert.Equal(t, 12.0, m.ApproxTokens("u"))
	assert.Equal(t, strings.Repeat("b", 9), m.GetHistory("u")[0].Content)
}

func TestTrimOversizedPairEmptiesHistory(t *testing.T) {
	m := newUnitManager(5)
	m.AppendUserTurn("u", "hello world")
	evicted := m.RecordReply("u", "zzzzzzzz")
	assert.Equal(t, 2, evicted)
	assert.Empty(t, m.GetHistory("u"))
	assert.Equal(t, 0.0, m.ApproxTokens("u"))

	reply, err := m.Respond(context.Background(), "u", "hi", echo(""))
	require.NoError(t, err)
	assert.Equal(t, "hi", reply)
	assert.Len(t, m.GetHistory("u"), 2)
}

func TestTrimKeepsLastReplyWhenQuestionTooBig(t *testing.T) {
	m := newUnitManager(5)
	m.AppendUserTurn("u", "hello world")
	m.RecordReply("u", "ok")

	h := m.GetHistory("u")
	require.Len(t, h, 1)
	assert.Equal(t, Turn{Role: RoleAssistant, Content: "ok"}, h[0])
}

func TestTrimDisabledWithoutBudget(t *testing.T) {
	m := newUnitManager(0)
	for i := 0; i < 50; i++ {
		m.AppendUserTurn("u", strings.Repeat("x", 100))
		m.RecordReply("u", strings.Repeat("y", 100))
	}
	assert.Len(t, m.GetHistory("u"), 100)
}

func TestTrimDefaultCharsPerToken(t *testing.T) {
	m := NewManager(Options{MaxTokenBudget: 5}, nil)
	m.AppendUserTurn("u", strings.Repeat("a", 12)) // 3 tokens
	m.RecordReply("u", strings.Repeat("b", 8))     // 2 tokens
	assert.Len(t, m.GetHistory("u"), 2)

	m.AppendUserTurn("u", "cccc") // 1 token
	m.RecordReply("u", "dddd")    // 1 token, total 7
	h := m.GetHistory("u")
	require.Len(t, h, 3)
	assert.Equal(t, strings.Repeat("b", 8), h[0].Content)
}

func TestRespondDifferentUsersConcurrently(t *testing.T) {
	m := newUnitManager(0)
	var wg sync.WaitGroup
	users := []string{"a", "b", "c", "d"}
	for _, u := range users {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				_, _ = m.Respond(context.Background(), u, "ping", echo("pong "))
			}
		}(u)
	}
	wg.Wait()
	for _, u := range users {
		assert.Len(t, m.GetHistory(u), 40)
	}
}
