package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/xor777/ai-telegram-chatbot/internal/auth"
	"github.com/xor777/ai-telegram-chatbot/internal/conversation"
	"github.com/xor777/ai-telegram-chatbot/internal/storage"
)

const (
	cmdStart     = "start"
	cmdHelp      = "help"
	cmdForgetAll = "forget_all"
	cmdAddUser   = "add_user"
)

const (
	unauthorizedText  = "Sorry, you are not allowed to use this bot. Ask the bot admin to add you."
	forgottenText     = "Everything is forgotten 🧠❌"
	addUserUsageText  = "Please specify username to add. Example: /add_user username"
	emptyReplyText    = "The model returned an empty response. Please try rephrasing your message."
	voiceFailedText   = "Sorry, I couldn't process your voice message."
	unsupportedText   = "I can only handle text and voice messages."
	persistFailedText = "Failed to save the list of allowed users. Please contact bot admin."
)

const helpText = "Available commands:\n" +
	"/start - Start the bot\n" +
	"/help - Show this help message\n" +
	"/forget_all - Clear conversation history\n" +
	"/add_user - Add new user. Example: /add_user username\n\n" +
	"You can send text or voice messages, and I'll respond accordingly.\n" +
	"Voice messages will be transcribed and processed, and you'll get a voice response."

func (b *Bot) handleIncomingMessage(ctx context.Context, msg *tgbotapi.Message) {
	in := newInbound(b, msg)
	username := in.Username()

	if !b.allowlist.IsAllowed(username) {
		b.logger.Warn("unauthorized access attempt", "user", username, "user_id", msg.From.ID)
		b.reply(in, unauthorizedText)
		return
	}
	b.rememberChat(username, msg.Chat.ID)

	switch {
	case msg.IsCommand():
		b.handleCommand(in, msg)
	case msg.Voice != nil:
		b.handleVoice(ctx, in, msg)
	case msg.Text != "":
		b.handleText(ctx, in, msg.Chat.ID)
	default:
		b.reply(in, unsupportedText)
	}
}

func (b *Bot) handleCommand(in Inbound, msg *tgbotapi.Message) {
	username := in.Username()
	switch msg.Command() {
	case cmdStart:
		b.reply(in, fmt.Sprintf("Hi! This bot is just an interface to AI language models. Now it is working with %s model. "+
			"You can ask anything in any language you know. Use /help command to get help. Enjoy!", b.opts.ChatModel))
	case cmdHelp:
		b.logger.Info("requested help", "user", username)
		b.reply(in, helpText)
	case cmdForgetAll:
		b.history.Clear(username)
		b.reply(in, forgottenText)
	case cmdAddUser:
		b.handleAddUser(in, msg.CommandArguments())
	default:
		b.reply(in, "Unknown command. Use /help to see what I can do.")
	}
}

func (b *Bot) handleAddUser(in Inbound, args string) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		b.reply(in, addUserUsageText)
		return
	}
	newUser := auth.NormalizeUsername(fields[0])
	if newUser == "" {
		b.reply(in, addUserUsageText)
		return
	}
	b.logger.Info("attempting to add new user", "user", in.Username(), "new_user", newUser)

	added, err := b.allowlist.Add(newUser, in.Username())
	if err != nil {
		b.logger.Error("failed to persist allow-list", "user", in.Username(), "err", err)
		b.reply(in, persistFailedText)
		b.fail(err)
		return
	}
	if !added {
		b.reply(in, fmt.Sprintf("User @%s is already in the allowed list", newUser))
		return
	}
	b.reply(in, fmt.Sprintf("User @%s added successfully", newUser))
}

func (b *Bot) handleText(ctx context.Context, in Inbound, chatID int64) {
	username := in.Username()
	b.logger.Info("received text message", "user", username)
	b.sendChatAction(chatID, tgbotapi.ChatTyping)

	reply, err := b.respond(ctx, username, in.Text(), storage.KindText)
	if err != nil {
		b.reply(in, failureText(err))
		return
	}
	b.reply(in, reply)
	b.logger.Info("sent response", "user", username)
}

// respond runs one conversation turn with the completion timeout applied and
// records the outcome in the interaction log.
func (b *Bot) respond(ctx context.Context, username, text string, kind storage.Kind) (string, error) {
	if b.opts.CompletionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.CompletionTimeout)
		defer cancel()
	}

	b.logger.Info("requesting AI response", "user", username)
	reply, err := b.history.Respond(ctx, username, text, b.completer)

	ev := storage.Event{Timestamp: b.now().UTC(), Username: username, Kind: kind, UserMessage: text, AssistantResponse: reply}
	if err != nil {
		ev.Error = err.Error()
		b.logger.Error("error processing message", "user", username, "err", err)
	} else {
		b.logger.Info("got response from AI", "user", username)
	}
	if b.recorder != nil {
		if rerr := b.recorder.AppendInteraction(ev); rerr != nil {
			b.logger.Warn("failed to record interaction", "user", username, "err", rerr)
		}
	}
	return reply, err
}

// failureText maps a respond error to the message shown to the user.
func failureText(err error) string {
	if errors.Is(err, conversation.ErrEmptyReply) {
		return emptyReplyText
	}
	return fmt.Sprintf("An error occurred while processing your message:\n%v\nPlease contact bot admin", err)
}

func (b *Bot) reply(in Inbound, text string) {
	if err := in.Reply(text); err != nil {
		b.logger.Error("failed to send message", "user", in.Username(), "err", err)
	}
}
