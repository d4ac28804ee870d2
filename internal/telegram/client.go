// Package telegram delivers crowding alerts to race operations staff.
// It formats flagged-segment summaries into MarkdownV2 messages and
// retries delivery with linear backoff on API failures.
package telegram

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/racefield/crowdflow/internal/models"
)

// Client handles Telegram notifications.
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}
	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// SendFlagAlert notifies about segments whose worst severity is at or
// above minSeverity. Sends nothing when no segment qualifies.
func (c *Client) SendFlagAlert(runID string, summaries []models.SegmentFlagSummary, minSeverity models.Severity) error {
	message := formatFlagAlert(runID, summaries, minSeverity)
	if message == "" {
		return nil
	}
	msg := tgbotapi.NewMessage(c.chatID, message)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		_, err := c.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("failed to send alert after %d retries: %w", c.maxRetries, lastErr)
}

// formatFlagAlert builds the MarkdownV2 alert body. Returns "" when no
// summary reaches minSeverity.
func formatFlagAlert(runID string, summaries []models.SegmentFlagSummary, minSeverity models.Severity) string {
	var flagged []models.SegmentFlagSummary
	for _, s := range summaries {
		if s.WorstSeverity >= minSeverity {
			flagged = append(flagged, s)
		}
	}
	if len(flagged) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("*Crowding alert*\n")
	b.WriteString(fmt.Sprintf("Run: `%s`\n\n", escapeMarkdownV2(runID)))
	for _, s := range flagged {
		emoji := severityEmoji(s.WorstSeverity)
		b.WriteString(fmt.Sprintf("%s *%s*: %s, LOS %s\n",
			emoji,
			escapeMarkdownV2(s.SegmentID),
			escapeMarkdownV2(s.WorstSeverity.String()),
			escapeMarkdownV2(s.WorstLOS)))
		b.WriteString(fmt.Sprintf("   %d flagged bins, peak %s p/m², %s p/s\n",
			s.FlaggedBins,
			escapeMarkdownV2(fmt.Sprintf("%.3f", s.PeakDensity)),
			escapeMarkdownV2(fmt.Sprintf("%.3f", s.PeakRate))))
	}
	return b.String()
}

func severityEmoji(s models.Severity) string {
	switch s {
	case models.SeverityCritical:
		return "\U0001F6A8" // rotating light
	case models.SeverityAlert:
		return "⚠️" // warning sign
	default:
		return "\U0001F440" // eyes
	}
}

// escapeMarkdownV2 escapes the characters Telegram's MarkdownV2 parser
// treats as markup.
func escapeMarkdownV2(text string) string {
	special := []string{"_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!"}
	for _, ch := range special {
		text = strings.ReplaceAll(text, ch, "\\"+ch)
	}
	return text
}
