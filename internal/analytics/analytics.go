package analytics

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/xor777/ai-telegram-chatbot/internal/storage"
)

// DailyStats aggregates one day of interactions.
type DailyStats struct {
	Date          string               `json:"date"`
	TotalMessages int                  `json:"total_messages"`
	VoiceMessages int                  `json:"voice_messages"`
	FailedReplies int                  `json:"failed_replies"`
	UniqueUsers   int                  `json:"unique_users"`
	UserStats     map[string]UserStats `json:"user_stats"`
}

type UserStats struct {
	Username      string `json:"username"`
	Messages      int    `json:"messages"`
	VoiceMessages int    `json:"voice_messages"`
	FailedReplies int    `json:"failed_replies"`
}

// AnalyzeDailyLogs counts the events of the calendar day containing targetDate.
func AnalyzeDailyLogs(events []storage.Event, targetDate time.Time) *DailyStats {
	startOfDay := time.Date(targetDate.Year(), targetDate.Month(), targetDate.Day(), 0, 0, 0, 0, targetDate.Location())
	endOfDay := startOfDay.Add(24 * time.Hour)

	stats := &DailyStats{
		Date:      startOfDay.Format("2006-01-02"),
		UserStats: make(map[string]UserStats),
	}

	for _, event := range events {
		if event.Timestamp.Before(startOfDay) || !event.Timestamp.Before(endOfDay) {
			continue
		}
		if event.UserMessage == "" {
			continue
		}

		stats.TotalMessages++
		us, ok := stats.UserStats[event.Username]
		if !ok {
			us = UserStats{Username: event.Username}
		}
		us.Messages++
		if event.Kind == storage.KindVoice {
			stats.VoiceMessages++
			us.VoiceMessages++
		}
		if event.Error != "" {
			stats.FailedReplies++
			us.FailedReplies++
		}
		stats.UserStats[event.Username] = us
	}

	stats.UniqueUsers = len(stats.UserStats)
	return stats
}

// GenerateReportSummary renders the stats as a plain-text report.
func (ds *DailyStats) GenerateReportSummary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Usage report for %s\n\n", ds.Date)
	fmt.Fprintf(&b, "Messages: %d (voice: %d)\n", ds.TotalMessages, ds.VoiceMessages)
	fmt.Fprintf(&b, "Failed replies: %d\n", ds.FailedReplies)
	fmt.Fprintf(&b, "Active users: %d\n", ds.UniqueUsers)

	if len(ds.UserStats) == 0 {
		return b.String()
	}

	names := make([]string, 0, len(ds.UserStats))
	for name := range ds.UserStats {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, c := ds.UserStats[names[i]], ds.UserStats[names[j]]
		if a.Messages != c.Messages {
			return a.Messages > c.Messages
		}
		return names[i] < names[j]
	})

	b.WriteString("\n")
	for _, name := range names {
		us := ds.UserStats[name]
		fmt.Fprintf(&b, "- @%s: %d messages", name, us.Messages)
		if us.VoiceMessages > 0 {
			fmt.Fprintf(&b, ", %d voice", us.VoiceMessages)
		}
		if us.FailedReplies > 0 {
			fmt.Fprintf(&b, ", %d failed", us.FailedReplies)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (ds *DailyStats) ToJSON() (string, error) {
	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
