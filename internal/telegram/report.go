package telegram

import (
	"context"
	"fmt"

	"github.com/xor777/ai-telegram-chatbot/internal/analytics"
)

// SendDailyReport sends today's usage statistics to the admin. The admin's
// chat becomes known once the admin has written to the bot since start-up.
func (b *Bot) SendDailyReport(ctx context.Context) error {
	if b.recorder == nil {
		return nil
	}
	admin, ok := b.allowlist.Admin()
	if !ok {
		return nil
	}
	chatID, ok := b.chatOf(admin)
	if !ok {
		b.logger.Warn("admin chat unknown, skipping daily report", "admin", admin)
		return nil
	}

	events, err := b.recorder.LoadInteractions()
	if err != nil {
		return fmt.Errorf("load interactions: %w", err)
	}
	stats := analytics.AnalyzeDailyLogs(events, b.now().UTC())
	if data, err := stats.ToJSON(); err == nil {
		b.logger.Info("daily stats", "stats", data)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.sendText(chatID, stats.GenerateReportSummary())
}
