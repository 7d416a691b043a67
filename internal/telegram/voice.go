package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/xor777/ai-telegram-chatbot/internal/storage"
)

const maxVoiceSize = 20 << 20

func (b *Bot) handleVoice(ctx context.Context, in *tgInbound, msg *tgbotapi.Message) {
	username := in.Username()
	b.logger.Info("received voice message", "user", username)

	if b.transcriber == nil {
		b.reply(in, voiceFailedText)
		return
	}
	b.sendChatAction(msg.Chat.ID, tgbotapi.ChatRecordVoice)

	transcript, err := b.transcribeVoice(ctx, msg)
	if err != nil {
		b.logger.Error("voice message handling error", "user", username, "err", err)
		b.reply(in, voiceFailedText)
		return
	}
	b.logger.Info("voice transcription completed", "user", username)
	in.text = transcript

	b.sendChatAction(msg.Chat.ID, tgbotapi.ChatTyping)
	reply, err := b.respond(ctx, username, transcript, storage.KindVoice)
	if err != nil {
		b.reply(in, failureText(err))
		return
	}
	b.sendVoiceReply(ctx, in, msg.Chat.ID, reply)
}

func (b *Bot) transcribeVoice(ctx context.Context, msg *tgbotapi.Message) (string, error) {
	audio, err := b.downloadFile(ctx, msg.Voice.FileID)
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("voice_message_%d.ogg", msg.MessageID)
	transcript, err := b.transcriber.Transcribe(ctx, bytes.NewReader(audio), name)
	if err != nil {
		return "", err
	}
	if transcript == "" {
		return "", errors.New("empty transcript")
	}
	return transcript, nil
}

func (b *Bot) downloadFile(ctx context.Context, fileID string) ([]byte, error) {
	url, err := b.s.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("get file url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download file: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxVoiceSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read file content: %w", err)
	}
	return data, nil
}

// sendVoiceReply synthesizes reply and sends it as a voice message, falling
// back to text when synthesis or upload fails.
func (b *Bot) sendVoiceReply(ctx context.Context, in Inbound, chatID int64, reply string) {
	username := in.Username()
	if !b.opts.VoiceReplies || b.synthesizer == nil {
		b.reply(in, reply)
		return
	}

	b.logger.Info("requesting text-to-speech", "user", username)
	audio, err := b.synthesizer.Synthesize(ctx, reply)
	if err != nil {
		b.logger.Error("text-to-speech failed", "user", username, "err", err)
		b.reply(in, reply)
		return
	}
	defer audio.Close()

	voice := tgbotapi.NewVoice(chatID, tgbotapi.FileReader{Name: "answer.ogg", Reader: audio})
	if _, err := b.s.Send(voice); err != nil {
		b.logger.Error("error sending voice message", "user", username, "err", err)
		b.reply(in, reply)
		return
	}
	b.logger.Info("successfully sent voice message", "user", username)
}
