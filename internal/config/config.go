package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
)

type LLMProvider string

const (
	ProviderOpenAI   LLMProvider = "openai"
	ProviderDeepSeek LLMProvider = "deepseek"
	ProviderYandex   LLMProvider = "yandex"
)

type AllowlistBackend string

const (
	BackendJSON   AllowlistBackend = "json"
	BackendSQLite AllowlistBackend = "sqlite"
)

type Config struct {
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN,required"`
	AdminUsername    string `env:"ADMIN_USERNAME"`

	// LLM settings
	LLMProvider        LLMProvider   `env:"LLM_PROVIDER" envDefault:"openai"`
	OpenAIAPIKey       string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL      string        `env:"OPENAI_BASE_URL"`
	DeepSeekAPIKey     string        `env:"DEEPSEEK_API_KEY"`
	DeepSeekBaseURL    string        `env:"DEEPSEEK_BASE_URL" envDefault:"https://api.deepseek.com/v1"`
	ChatModel          string        `env:"CHAT_MODEL"`
	ChatModelMaxTokens int           `env:"CHAT_MODEL_MAX_TOKENS" envDefault:"1000"`
	CompletionTimeout  time.Duration `env:"COMPLETION_TIMEOUT" envDefault:"60s"`
	YandexOAuthToken   string        `env:"YANDEX_OAUTH_TOKEN"`
	YandexFolderID     string        `env:"YANDEX_FOLDER_ID"`

	// Prompts
	SystemPromptPath string `env:"SYSTEM_PROMPT_PATH" envDefault:"prompts/system_prompt.txt"`

	// Context window
	MaxTokenBudget int     `env:"MAX_TOKEN_BUDGET" envDefault:"3000"`
	CharsPerToken  float64 `env:"CHARS_PER_TOKEN" envDefault:"4"`
	TokenEstimator string  `env:"TOKEN_ESTIMATOR" envDefault:"chars"`
	TokenEncoding  string  `env:"TOKEN_ENCODING" envDefault:"cl100k_base"`

	// Voice
	VoiceToTextModel  string `env:"VOICE_TO_TEXT_MODEL" envDefault:"whisper-1"`
	TextToSpeechModel string `env:"TEXT_TO_SPEECH_MODEL" envDefault:"tts-1"`
	TextToSpeechVoice string `env:"TEXT_TO_SPEECH_VOICE" envDefault:"alloy"`
	VoiceReplies      bool   `env:"VOICE_REPLIES" envDefault:"true"`

	// Network
	SocksProxy string `env:"SOCKS_PROXY"`

	// Storage
	AllowlistBackend  AllowlistBackend `env:"ALLOWLIST_BACKEND" envDefault:"json"`
	AllowlistFilePath string           `env:"ALLOWLIST_FILE_PATH" envDefault:"allowed_users.json"`
	AllowlistDBPath   string           `env:"ALLOWLIST_DB_PATH" envDefault:"data/allowlist.db"`
	LogFilePath       string           `env:"LOG_FILE_PATH" envDefault:"logs/log.jsonl"`

	// Reports
	DailyReportCron string `env:"DAILY_REPORT_CRON" envDefault:"0 21 * * *"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

func New() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Model returns the configured chat model or the provider default.
func (c *Config) Model() string {
	if c.ChatModel != "" {
		return c.ChatModel
	}
	switch c.LLMProvider {
	case ProviderDeepSeek:
		return "deepseek-chat"
	case ProviderYandex:
		return "yandexgpt-lite"
	default:
		return "gpt-4o-mini"
	}
}

// SpeechAPIKey is the OpenAI key used for transcription and synthesis, which
// are served by OpenAI regardless of the chat provider.
func (c *Config) SpeechAPIKey() string {
	return c.OpenAIAPIKey
}

func (c *Config) Validate() error {
	var errs []error
	switch c.LLMProvider {
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required for the openai provider"))
		}
	case ProviderDeepSeek:
		if c.DeepSeekAPIKey == "" {
			errs = append(errs, errors.New("DEEPSEEK_API_KEY is required for the deepseek provider"))
		}
	case ProviderYandex:
		if c.YandexOAuthToken == "" || c.YandexFolderID == "" {
			errs = append(errs, errors.New("YANDEX_OAUTH_TOKEN and YANDEX_FOLDER_ID are required for the yandex provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown llm provider: %s", c.LLMProvider))
	}
	if c.MaxTokenBudget <= 0 {
		errs = append(errs, fmt.Errorf("MAX_TOKEN_BUDGET must be positive, got %d", c.MaxTokenBudget))
	}
	if c.CharsPerToken <= 0 {
		errs = append(errs, fmt.Errorf("CHARS_PER_TOKEN must be positive, got %v", c.CharsPerToken))
	}
	switch strings.ToLower(c.TokenEstimator) {
	case "chars", "tiktoken":
	default:
		errs = append(errs, fmt.Errorf("unknown TOKEN_ESTIMATOR: %s", c.TokenEstimator))
	}
	switch c.AllowlistBackend {
	case BackendJSON, BackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("unknown ALLOWLIST_BACKEND: %s", c.AllowlistBackend))
	}
	return errors.Join(errs...)
}
