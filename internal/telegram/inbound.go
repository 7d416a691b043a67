package telegram

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Inbound is the view of an incoming message the dispatch logic works with.
type Inbound interface {
	Username() string
	Text() string
	Reply(text string) error
}

type tgInbound struct {
	b    *Bot
	msg  *tgbotapi.Message
	text string
}

func newInbound(b *Bot, msg *tgbotapi.Message) *tgInbound {
	return &tgInbound{b: b, msg: msg, text: msg.Text}
}

func (m *tgInbound) Username() string {
	if m.msg.From == nil {
		return ""
	}
	return m.msg.From.UserName
}

func (m *tgInbound) Text() string { return m.text }

func (m *tgInbound) Reply(text string) error {
	return m.b.sendText(m.msg.Chat.ID, text)
}
