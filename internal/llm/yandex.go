package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Morwran/yagpt"
)

// IAM tokens live 12h; Yandex recommends requesting a new one every hour.
const iamTokenTTL = time.Hour

// iamTokenSource caches an IAM token and reissues it once it is older than ttl.
type iamTokenSource struct {
	issue func() (string, error)
	ttl   time.Duration
	now   func() time.Time

	mu       sync.Mutex
	token    string
	issuedAt time.Time
}

func (s *iamTokenSource) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != "" && s.now().Sub(s.issuedAt) < s.ttl {
		return s.token, nil
	}
	token, err := s.issue()
	if err != nil {
		if s.token != "" {
			// the previous token is still valid for several hours
			return s.token, nil
		}
		return "", err
	}
	if token == "" {
		return "", errors.New("empty iam token")
	}
	s.token, s.issuedAt = token, s.now()
	return token, nil
}

// YandexClient talks to YandexGPT. The yagpt client manages its own HTTP
// transport, so a configured SOCKS proxy does not apply to it.
type YandexClient struct {
	ya     yagpt.YaGPTFace
	tokens *iamTokenSource
}

func NewYandex(oauthToken, folderID string) (*YandexClient, error) {
	iam, err := yagpt.NewYaIam(oauthToken)
	if err != nil {
		return nil, fmt.Errorf("failed to init yandex iam: %w", err)
	}
	ya, err := yagpt.NewYagpt(folderID)
	if err != nil {
		return nil, fmt.Errorf("failed to init yagpt: %w", err)
	}

	tokens := &iamTokenSource{
		issue: func() (string, error) {
			resp, err := iam.Create()
			if err != nil {
				return "", fmt.Errorf("failed to create iam token: %w", err)
			}
			return resp.IamToken, nil
		},
		ttl: iamTokenTTL,
		now: time.Now,
	}
	// fail fast on a bad OAuth token
	if _, err := tokens.Token(); err != nil {
		return nil, err
	}
	return &YandexClient{ya: ya, tokens: tokens}, nil
}

func (c *YandexClient) Generate(ctx context.Context, messages []Message) (Response, error) {
	iamToken, err := c.tokens.Token()
	if err != nil {
		return Response{}, err
	}

	yaMsgs := make([]yagpt.Message, 0, len(messages))
	for _, m := range messages {
		yaMsgs = append(yaMsgs, yagpt.Message{Role: m.Role, Content: m.Content})
	}

	resp, err := c.ya.CompletionWithCtx(ctx, iamToken, yaMsgs)
	if err != nil {
		return Response{}, fmt.Errorf("yagpt completion failed: %w", err)
	}
	if resp == nil || len(resp.Alternatives) == 0 {
		return Response{}, errors.New("yagpt returned empty response")
	}
	return Response{
		Content:          resp.Alternatives[0].Message.Content,
		Model:            yagpt.YaModelLite,
		PromptTokens:     int(resp.Usage.InputTextTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}, nil
}
