// Package telegram provides a client for sending notifications via Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rewired-gh/optionlab/internal/models"
)

// Client handles Telegram notifications.
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration

	mu   sync.Mutex
	last *Report
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

// ListenForCommands starts a goroutine that polls for Telegram updates and handles bot commands.
// It returns immediately; the goroutine stops when ctx is cancelled.
func (c *Client) ListenForCommands(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil && update.Message.IsCommand() {
					c.handleCommand(update.Message)
				}
			}
		}
	}()
}

func (c *Client) handleCommand(msg *tgbotapi.Message) {
	switch msg.Command() {
	case "ping":
		reply := tgbotapi.NewMessage(msg.Chat.ID, "Pong")
		c.bot.Send(reply) //nolint:errcheck
	case "top":
		c.mu.Lock()
		last := c.last
		c.mu.Unlock()
		text := "No scan has completed yet\\."
		if last != nil {
			text = formatReport(*last)
		}
		reply := tgbotapi.NewMessage(msg.Chat.ID, text)
		reply.ParseMode = "MarkdownV2"
		c.bot.Send(reply) //nolint:errcheck
	}
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if _, err := c.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if i < c.maxRetries-1 {
			time.Sleep(c.retryDelayBase * time.Duration(i+1))
		}
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// SendError sends a scan error notification.
// Call this only on the first occurrence of a consecutive error sequence.
func (c *Client) SendError(cycleErr error) error {
	text := fmt.Sprintf("⚠️ *Skew scan error*\n`%s`", escapeMarkdownV2(cycleErr.Error()))
	return c.sendMarkdownV2(text)
}

// SendRecovery sends a recovery notification after consecutive failures.
func (c *Client) SendRecovery(failureCount int) error {
	text := fmt.Sprintf("✅ *Skew scan recovered* after %d consecutive failure\\(s\\)", failureCount)
	return c.sendMarkdownV2(text)
}

// Report is one CPIV scan ready to be pushed to the chat.
type Report struct {
	RunID     string
	ScannedAt time.Time
	Results   []models.CPIVResult
	Failures  []models.CPIVFailure
	TopK      int
}

// SendReport sends the ranked CPIV spreads of one scan.
func (c *Client) SendReport(r Report) error {
	c.mu.Lock()
	c.last = &r
	c.mu.Unlock()
	return c.sendMarkdownV2(formatReport(r))
}

const (
	// maxMessageRunes is Telegram's limit for one message.
	maxMessageRunes = 4096
	// maxFailureLines caps the skipped entries listed under a report.
	maxFailureLines = 10
	// reservedRunes leaves room for the overflow line and the run id footer.
	reservedRunes = 128
)

// formatReport formats a CPIV ranking into a Telegram MarkdownV2 message
// no longer than maxMessageRunes.
func formatReport(r Report) string {
	var b strings.Builder
	b.WriteString("📊 *Call\\-Put IV Spread Ranking*\n\n")

	if !r.ScannedAt.IsZero() {
		fmt.Fprintf(&b, "📅 Scanned: %s\n\n", escapeMarkdownV2(r.ScannedAt.Format("2006-01-02 15:04:05")))
	}

	results := r.Results
	if r.TopK > 0 && len(results) > r.TopK {
		results = results[:r.TopK]
	}
	if len(results) == 0 {
		b.WriteString("No chains could be ranked\\.\n")
	}
	lines := make([]string, 0, len(results))
	for i, res := range results {
		emoji := "🟢"
		if res.CPIV < 0 {
			emoji = "🔴"
		}
		spread := escapeMarkdownV2(fmt.Sprintf("%+.2f%%", res.CPIV*100))
		lines = append(lines, fmt.Sprintf("%d\\. %s *%s* %s  %s\n",
			i+1, emoji, escapeMarkdownV2(res.Ticker), escapeMarkdownV2(res.Expiration), spread))
	}
	used := utf8.RuneCountInString(b.String())
	used = writeLines(&b, lines, len(lines), used)

	if len(r.Failures) > 0 {
		header := fmt.Sprintf("\n⚠️ *Skipped %d*\n", len(r.Failures))
		if used+utf8.RuneCountInString(header)+reservedRunes <= maxMessageRunes {
			b.WriteString(header)
			used += utf8.RuneCountInString(header)
			failures := make([]string, len(r.Failures))
			for i, f := range r.Failures {
				failures[i] = fmt.Sprintf("• %s\n", escapeMarkdownV2(f.Error()))
			}
			writeLines(&b, failures, maxFailureLines, used)
		}
	}

	if r.RunID != "" {
		fmt.Fprintf(&b, "\n`%s`", escapeMarkdownV2(r.RunID))
	}

	return b.String()
}

// writeLines appends up to limit lines while the message stays within
// maxMessageRunes minus reservedRunes, then notes how many were left out.
// It returns the updated rune count.
func writeLines(b *strings.Builder, lines []string, limit, used int) int {
	written := 0
	for _, line := range lines {
		n := utf8.RuneCountInString(line)
		if written == limit || used+n+reservedRunes > maxMessageRunes {
			break
		}
		b.WriteString(line)
		used += n
		written++
	}
	if omitted := len(lines) - written; omitted > 0 {
		more := fmt.Sprintf("…and %d more\n", omitted)
		b.WriteString(more)
		used += utf8.RuneCountInString(more)
	}
	return used
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
