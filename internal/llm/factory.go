package llm

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/xor777/ai-telegram-chatbot/internal/config"
)

// Factory creates LLM clients with consistent logic
type Factory struct {
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	DeepSeekAPIKey   string
	DeepSeekBaseURL  string
	YandexOAuthToken string
	YandexFolderID   string
	MaxTokens        int
	HTTPClient       *http.Client
}

func NewFactory(cfg *config.Config, httpClient *http.Client) *Factory {
	return &Factory{
		OpenAIAPIKey:     cfg.OpenAIAPIKey,
		OpenAIBaseURL:    cfg.OpenAIBaseURL,
		DeepSeekAPIKey:   cfg.DeepSeekAPIKey,
		DeepSeekBaseURL:  cfg.DeepSeekBaseURL,
		YandexOAuthToken: cfg.YandexOAuthToken,
		YandexFolderID:   cfg.YandexFolderID,
		MaxTokens:        cfg.ChatModelMaxTokens,
		HTTPClient:       httpClient,
	}
}

func (f *Factory) CreateClient(provider config.LLMProvider, model string) (Client, error) {
	switch config.LLMProvider(strings.ToLower(string(provider))) {
	case config.ProviderOpenAI:
		return NewOpenAI(f.OpenAIAPIKey, f.OpenAIBaseURL, model, f.MaxTokens, f.HTTPClient), nil
	case config.ProviderDeepSeek:
		return NewOpenAI(f.DeepSeekAPIKey, f.DeepSeekBaseURL, model, f.MaxTokens, f.HTTPClient), nil
	case config.ProviderYandex:
		return NewYandex(f.YandexOAuthToken, f.YandexFolderID)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", provider)
	}
}
