package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	cli "github.com/spf13/pflag"

	"github.com/xor777/ai-telegram-chatbot/internal/auth"
	"github.com/xor777/ai-telegram-chatbot/internal/config"
	"github.com/xor777/ai-telegram-chatbot/internal/conversation"
	"github.com/xor777/ai-telegram-chatbot/internal/llm"
	"github.com/xor777/ai-telegram-chatbot/internal/netproxy"
	"github.com/xor777/ai-telegram-chatbot/internal/scheduler"
	"github.com/xor777/ai-telegram-chatbot/internal/speech"
	"github.com/xor777/ai-telegram-chatbot/internal/storage"
	"github.com/xor777/ai-telegram-chatbot/internal/telegram"
)

var logLevelMap = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	admin := cli.StringP("admin", "a", "", "Bot admin telegram username, used when no allow-list exists yet")
	logLevel := cli.StringP("log", "l", "", "Log level (debug, info, warn, error)")
	cli.Parse()

	envErr := godotenv.Load(*envFile)

	// LOG_LEVEL from the config takes effect once it is parsed
	level := new(slog.LevelVar)
	level.Set(parseLevel(*logLevel))
	logger := slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      level,
		TimeFormat: time.DateTime,
	}))
	slog.SetDefault(logger)

	if envErr != nil {
		logger.Warn("env file not loaded", "path", *envFile, "err", envErr)
	}

	if err := run(logger, level, *logLevel, *admin); err != nil {
		var cfgErr *auth.ConfigError
		if errors.As(err, &cfgErr) {
			logger.Error("No admin specified. Use --admin argument or enter it manually", "err", err)
		} else {
			logger.Error("bot stopped with error", "err", err)
		}
		os.Exit(1)
	}
}

func parseLevel(s string) slog.Level {
	if l, ok := logLevelMap[strings.ToLower(s)]; ok {
		return l
	}
	return slog.LevelInfo
}

// applyLogLevel lets the --log flag override LOG_LEVEL.
func applyLogLevel(level *slog.LevelVar, flagValue, cfgValue string) {
	if flagValue != "" {
		level.Set(parseLevel(flagValue))
		return
	}
	level.Set(parseLevel(cfgValue))
}

func run(logger *slog.Logger, level *slog.LevelVar, levelFlag, adminFlag string) error {
	cfg, err := config.New()
	if err != nil {
		return err
	}
	applyLogLevel(level, levelFlag, cfg.LogLevel)

	httpClient, err := netproxy.NewHTTPClient(cfg.SocksProxy, 2*time.Minute)
	if err != nil {
		return fmt.Errorf("failed to dial socks proxy %s: %w", cfg.SocksProxy, err)
	}

	store, closeStore, err := openAllowlistStore(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	allowlist := auth.NewService(store, logger)
	if _, err := allowlist.Load(adminSource(adminFlag, cfg.AdminUsername, os.Stdin, os.Stdout)); err != nil {
		return err
	}

	estimator, err := newEstimator(cfg)
	if err != nil {
		return err
	}
	history := conversation.NewManager(conversation.Options{
		MaxTokenBudget: cfg.MaxTokenBudget,
		Estimator:      estimator,
	}, logger)

	if cfg.LLMProvider == config.ProviderYandex && cfg.SocksProxy != "" {
		logger.Warn("SOCKS_PROXY is not applied to YandexGPT requests")
	}
	llmClient, err := llm.NewFactory(cfg, httpClient).CreateClient(cfg.LLMProvider, cfg.Model())
	if err != nil {
		return fmt.Errorf("failed to create llm client: %w", err)
	}
	completer := llm.NewCompleter(llmClient, readSystemPrompt(logger, cfg.SystemPromptPath), logger)

	deps := telegram.Deps{
		HTTPClient: httpClient,
		Allowlist:  allowlist,
		History:    history,
		Completer:  completer,
		Logger:     logger,
	}
	if key := cfg.SpeechAPIKey(); key != "" {
		sp := speech.NewOpenAI(speech.Config{
			APIKey:     key,
			BaseURL:    cfg.OpenAIBaseURL,
			STTModel:   cfg.VoiceToTextModel,
			TTSModel:   cfg.TextToSpeechModel,
			TTSVoice:   cfg.TextToSpeechVoice,
			HTTPClient: httpClient,
		})
		deps.Transcriber = sp
		deps.Synthesizer = sp
	} else {
		logger.Warn("OPENAI_API_KEY not set, voice messages are disabled")
	}
	if cfg.LogFilePath != "" {
		rec, err := storage.NewFileRecorder(cfg.LogFilePath)
		if err != nil {
			logger.Warn("failed to init interaction log", "err", err)
		} else {
			deps.Recorder = rec
		}
	}

	api, err := tgbotapi.NewBotAPIWithClient(cfg.TelegramBotToken, tgbotapi.APIEndpoint, httpClient)
	if err != nil {
		return fmt.Errorf("failed to connect to telegram: %w", err)
	}
	deps.API = api

	bot, err := telegram.New(deps, telegram.Options{
		ChatModel:         cfg.Model(),
		VoiceReplies:      cfg.VoiceReplies,
		CompletionTimeout: cfg.CompletionTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create bot: %w", err)
	}

	sched := scheduler.New(logger)
	sched.SetReportFunction(bot.SendDailyReport)
	if err := sched.Start(cfg.DailyReportCron); err != nil {
		return fmt.Errorf("invalid DAILY_REPORT_CRON: %w", err)
	}
	defer sched.Stop()
	if sched.IsRunning() {
		logger.Info("daily report scheduled", "cron", cfg.DailyReportCron)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("bot started", "provider", cfg.LLMProvider, "model", cfg.Model(), "budget", cfg.MaxTokenBudget)
	return bot.Start(ctx)
}

func openAllowlistStore(cfg *config.Config, logger *slog.Logger) (auth.Store, func(), error) {
	switch cfg.AllowlistBackend {
	case config.BackendSQLite:
		s, err := auth.NewSQLiteStore(cfg.AllowlistDBPath, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open allow-list database: %w", err)
		}
		return s, func() { _ = s.Close() }, nil
	default:
		s, err := auth.NewFileStore(cfg.AllowlistFilePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to init allow-list file: %w", err)
		}
		return s, func() {}, nil
	}
}

func newEstimator(cfg *config.Config) (conversation.Estimator, error) {
	if strings.EqualFold(cfg.TokenEstimator, "tiktoken") {
		e, err := conversation.NewTiktokenEstimator(cfg.TokenEncoding)
		if err != nil {
			return nil, err
		}
		return e, nil
	}
	return conversation.CharEstimator{CharsPerToken: cfg.CharsPerToken}, nil
}

func readSystemPrompt(logger *slog.Logger, path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("system prompt file not found or unreadable", "path", path, "err", err)
		return ""
	}
	return strings.TrimSpace(string(data))
}

// adminSource prefers the flag, then the environment, then asks on the terminal.
func adminSource(flagValue, envValue string, in io.Reader, out io.Writer) auth.AdminSource {
	return func() (string, error) {
		if flagValue != "" {
			return flagValue, nil
		}
		if envValue != "" {
			return envValue, nil
		}
		return promptAdmin(in, out)
	}
}
