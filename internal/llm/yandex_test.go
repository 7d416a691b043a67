package llm

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIAMTokenSourceRefreshesAfterTTL(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	issued := 0
	src := &iamTokenSource{
		issue: func() (string, error) {
			issued++
			return "token-" + string(rune('0'+issued)), nil
		},
		ttl: time.Hour,
		now: func() time.Time { return now },
	}

	tok, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, "token-1", tok)

	now = now.Add(59 * time.Minute)
	tok, err = src.Token()
	require.NoError(t, err)
	assert.Equal(t, "token-1", tok)

	now = now.Add(2 * time.Minute)
	tok, err = src.Token()
	require.NoError(t, err)
	assert.Equal(t, "token-2", tok)
	assert.Equal(t, 2, issued)
}

func TestIAMTokenSourceKeepsOldTokenOnRefreshFailure(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	fail := false
	src := &iamTokenSource{
		issue: func() (string, error) {
			if fail {
				return "", errors.New("iam unavailable")
			}
			return "first", nil
		},
		ttl: time.Hour,
		now: func() time.Time { return now },
	}

	_, err := src.Token()
	require.NoError(t, err)

	fail = true
	now = now.Add(2 * time.Hour)
	tok, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, "first", tok)
}

func TestIAMTokenSourceInitialFailure(t *testing.T) {
	src := &iamTokenSource{
		issue: func() (string, error) { return "", errors.New("bad oauth token") },
		ttl:   time.Hour,
		now:   time.Now,
	}
	_, err := src.Token()
	assert.EqualError(t, err, "bad oauth token")

	src.issue = func() (string, error) { return "", nil }
	_, err = src.Token()
	assert.Error(t, err)
}
