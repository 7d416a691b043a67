package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xor777/ai-telegram-chatbot/internal/config"
	"github.com/xor777/ai-telegram-chatbot/internal/conversation"
)

type fakeClient struct {
	got  []Message
	resp Response
	err  error
}

func (f *fakeClient) Generate(_ context.Context, msgs []Message) (Response, error) {
	f.got = msgs
	return f.resp, f.err
}

func TestCompleterPrependsSystemPrompt(t *testing.T) {
	fc := &fakeClient{resp: Response{Content: "pong", Model: "m"}}
	c := NewCompleter(fc, "be brief", nil)

	out, err := c.Complete(context.Background(), []conversation.Turn{
		{Role: conversation.RoleUser, Content: "hi"},
		{Role: conversation.RoleAssistant, Content: "hello"},
		{Role: conversation.RoleUser, Content: "ping"},
	})
	require.NoError(t, err)
	assert.Equal(t, "pong", out)
	assert.Equal(t, []Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
		{Role: "user", Content: "ping"},
	}, fc.got)
}

func TestCompleterWithoutSystemPrompt(t *testing.T) {
	fc := &fakeClient{resp: Response{Content: "x"}}
	c := NewCompleter(fc, "", nil)
	_, err := c.Complete(context.Background(), []conversation.Turn{{Role: conversation.RoleUser, Content: "q"}})
	require.NoError(t, err)
	assert.Equal(t, []Message{{Role: "user", Content: "q"}}, fc.got)
}

func TestCompleterPropagatesError(t *testing.T) {
	boom := errors.New("503")
	c := NewCompleter(&fakeClient{err: boom}, "", nil)
	_, err := c.Complete(context.Background(), nil)
	assert.ErrorIs(t, err, boom)
}

func TestCompleterWithManager(t *testing.T) {
	fc := &fakeClient{resp: Response{Content: "answer"}}
	m := conversation.NewManager(conversation.Options{MaxTokenBudget: 100}, nil)

	reply, err := m.Respond(context.Background(), "alice", "question", NewCompleter(fc, "sys", nil))
	require.NoError(t, err)
	assert.Equal(t, "answer", reply)
	require.Len(t, fc.got, 2)
	assert.Equal(t, "question", fc.got[1].Content)
}

func TestFactoryUnknownProvider(t *testing.T) {
	f := &Factory{}
	_, err := f.CreateClient("gigachat", "m")
	assert.Error(t, err)
}

func TestFactoryOpenAICompatible(t *testing.T) {
	f := NewFactory(&config.Config{OpenAIAPIKey: "a", DeepSeekAPIKey: "b", DeepSeekBaseURL: "https://api.deepseek.com/v1", ChatModelMaxTokens: 10}, nil)
	for _, p := range []config.LLMProvider{config.ProviderOpenAI, "DeepSeek"} {
		c, err := f.CreateClient(p, "model")
		require.NoError(t, err)
		oc, ok := c.(*OpenAIClient)
		require.True(t, ok)
		assert.Equal(t, "model", oc.model)
		assert.Equal(t, 10, oc.maxTokens)
	}
}
