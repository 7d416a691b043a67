package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileRecorder_AppendAndLoad(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "logs", "log.jsonl")
	rec, err := NewFileRecorder(p)
	require.NoError(t, err)

	ev1 := Event{Timestamp: time.Unix(1, 0).UTC(), Username: "alice", Kind: KindText, UserMessage: "hi", AssistantResponse: "hello"}
	ev2 := Event{Timestamp: time.Unix(2, 0).UTC(), Username: "bob", Kind: KindVoice, UserMessage: "foo", Error: "timeout"}
	require.NoError(t, rec.AppendInteraction(ev1))
	require.NoError(t, rec.AppendInteraction(ev2))

	events, err := rec.LoadInteractions()
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, ev1, events[0])
	assert.Equal(t, ev2, events[1])

	st, err := os.Stat(p)
	require.NoError(t, err)
	assert.NotZero(t, st.Size())
}

func TestFileRecorder_SkipsGarbage(t *testing.T) {
	p := filepath.Join(t.TempDir(), "log.jsonl")
	require.NoError(t, os.WriteFile(p, []byte("not-json\n\n{\"username\":\"carol\"}\n"), 0o644))
	rec, err := NewFileRecorder(p)
	require.NoError(t, err)

	events, err := rec.LoadInteractions()
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "carol", events[0].Username)
}
