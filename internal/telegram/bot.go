package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/xor777/ai-telegram-chatbot/internal/auth"
	"github.com/xor777/ai-telegram-chatbot/internal/conversation"
	"github.com/xor777/ai-telegram-chatbot/internal/speech"
	"github.com/xor777/ai-telegram-chatbot/internal/storage"
)

const maxMessageLength = 4096

type Options struct {
	ChatModel         string
	VoiceReplies      bool
	CompletionTimeout time.Duration
}

// Deps are the collaborators of the bot. Transcriber, Synthesizer and
// Recorder are optional.
type Deps struct {
	API         botAPI
	HTTPClient  *http.Client
	Allowlist   *auth.Service
	History     *conversation.Manager
	Completer   conversation.Completer
	Transcriber speech.Transcriber
	Synthesizer speech.Synthesizer
	Recorder    storage.Recorder
	Logger      *slog.Logger
}

type Bot struct {
	s           botAPI
	httpClient  *http.Client
	allowlist   *auth.Service
	history     *conversation.Manager
	completer   conversation.Completer
	transcriber speech.Transcriber
	synthesizer speech.Synthesizer
	recorder    storage.Recorder
	opts        Options
	logger      *slog.Logger
	now         func() time.Time

	chatsMu sync.Mutex
	chats   map[string]int64

	qmu     sync.Mutex
	queues  map[string]*userQueue
	stopped bool
	wg      sync.WaitGroup

	fatal chan error
}

func New(deps Deps, opts Options) (*Bot, error) {
	if deps.API == nil || deps.Allowlist == nil || deps.History == nil || deps.Completer == nil {
		return nil, errors.New("telegram: api, allowlist, history and completer are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := deps.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Bot{
		s:           deps.API,
		httpClient:  httpClient,
		allowlist:   deps.Allowlist,
		history:     deps.History,
		completer:   deps.Completer,
		transcriber: deps.Transcriber,
		synthesizer: deps.Synthesizer,
		recorder:    deps.Recorder,
		opts:        opts,
		logger:      logger.With("component", "telegram"),
		now:         time.Now,
		chats:       make(map[string]int64),
		queues:      make(map[string]*userQueue),
		fatal:       make(chan error, 1),
	}, nil
}

// Start polls for updates until ctx is cancelled or a fatal error occurs.
// Messages of one user are handled in arrival order, one at a time; different
// users are handled concurrently.
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.s.GetUpdatesChan(u)
	b.logger.Info("bot started")
	defer func() {
		b.s.StopReceivingUpdates()
		b.closeQueues()
		b.logger.Info("bot stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-b.fatal:
			return err
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			msg := update.Message
			if msg == nil || msg.From == nil || msg.Chat == nil {
				continue
			}
			b.enqueue(queueKey(msg), func() { b.handleIncomingMessage(ctx, msg) })
		}
	}
}

func queueKey(msg *tgbotapi.Message) string {
	if msg.From.UserName != "" {
		return msg.From.UserName
	}
	return "chat:" + strconv.FormatInt(msg.Chat.ID, 10)
}

// userQueue holds the pending jobs of one user. A worker goroutine exists
// while running is true and exits once jobs is empty.
type userQueue struct {
	jobs    []func()
	running bool
}

// enqueue never blocks, so a slow user cannot stall the update loop.
func (b *Bot) enqueue(key string, job func()) {
	b.qmu.Lock()
	defer b.qmu.Unlock()
	if b.stopped {
		return
	}
	q, ok := b.queues[key]
	if !ok {
		q = &userQueue{}
		b.queues[key] = q
	}
	q.jobs = append(q.jobs, job)
	if !q.running {
		q.running = true
		b.wg.Add(1)
		go b.drain(key, q)
	}
}

func (b *Bot) drain(key string, q *userQueue) {
	defer b.wg.Done()
	for {
		b.qmu.Lock()
		if len(q.jobs) == 0 {
			q.running = false
			delete(b.queues, key)
			b.qmu.Unlock()
			return
		}
		job := q.jobs[0]
		q.jobs[0] = nil
		q.jobs = q.jobs[1:]
		b.qmu.Unlock()
		job()
	}
}

// closeQueues rejects new jobs and waits until the queued ones are done.
func (b *Bot) closeQueues() {
	b.qmu.Lock()
	b.stopped = true
	b.qmu.Unlock()
	b.wg.Wait()
}

// fail stops the update loop with err.
func (b *Bot) fail(err error) {
	select {
	case b.fatal <- err:
	default:
	}
}

func (b *Bot) rememberChat(username string, chatID int64) {
	if username == "" {
		return
	}
	b.chatsMu.Lock()
	b.chats[username] = chatID
	b.chatsMu.Unlock()
}

func (b *Bot) chatOf(username string) (int64, bool) {
	b.chatsMu.Lock()
	defer b.chatsMu.Unlock()
	id, ok := b.chats[username]
	return id, ok
}

func (b *Bot) sendText(chatID int64, text string) error {
	for _, part := range splitMessage(text, maxMessageLength) {
		if _, err := b.s.Send(tgbotapi.NewMessage(chatID, part)); err != nil {
			return fmt.Errorf("send message: %w", err)
		}
	}
	return nil
}

func (b *Bot) sendChatAction(chatID int64, action string) {
	if _, err := b.s.Request(tgbotapi.NewChatAction(chatID, action)); err != nil {
		b.logger.Debug("failed to send chat action", "action", action, "err", err)
	}
}

// splitMessage cuts text into pieces of at most limit runes, preferring line
// breaks as cut points.
func splitMessage(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}
	var parts []string
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}
