// Package notify pushes operator notifications (crawl summaries, stale
// applications, bridge results) to a Telegram chat.
package notify

import (
	"context"
	"fmt"
	"html"
	"log"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/jonathan/jobmatch/internal/bridge"
	"github.com/jonathan/jobmatch/internal/crawl"
	"github.com/jonathan/jobmatch/internal/db"
)

// maxMessageLen is Telegram's limit for one text message.
const maxMessageLen = 4096

// sender is the part of *tgbotapi.BotAPI the notifier uses.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram sends HTML formatted messages to one chat. A zero-value or nil
// Telegram is disabled and every method is a no-op.
type Telegram struct {
	api    sender
	chatID int64
	logger *log.Logger
}

// NewTelegram connects to the bot API. An empty token returns a disabled
// notifier.
func NewTelegram(token string, chatID int64, logger *log.Logger) (*Telegram, error) {
	if logger == nil {
		logger = log.Default()
	}
	if token == "" {
		logger.Printf("[NOTIFY] Telegram token not set, notifications disabled")
		return &Telegram{logger: logger}, nil
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram bot: %w", err)
	}
	return &Telegram{api: api, chatID: chatID, logger: logger}, nil
}

// Enabled reports whether messages are actually sent.
func (t *Telegram) Enabled() bool {
	return t != nil && t.api != nil
}

// SendMessage sends text, split into chunks that fit one message.
func (t *Telegram) SendMessage(ctx context.Context, text string) error {
	if !t.Enabled() {
		return nil
	}
	for _, chunk := range splitMessage(text, maxMessageLen) {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(t.chatID, chunk)
		msg.ParseMode = tgbotapi.ModeHTML
		msg.DisableWebPagePreview = true
		if _, err := t.api.Send(msg); err != nil {
			return fmt.Errorf("failed to send telegram message: %w", err)
		}
	}
	return nil
}

// NotifyStale implements lifecycle.StaleNotifier.
func (t *Telegram) NotifyStale(ctx context.Context, apps []db.StaleApplication) error {
	if len(apps) == 0 {
		return nil
	}
	return t.SendMessage(ctx, FormatStale(apps))
}

// NotifyRun reports the outcome of one crawl run.
func (t *Telegram) NotifyRun(ctx context.Context, res *crawl.RunResult) error {
	if res == nil {
		return nil
	}
	return t.SendMessage(ctx, FormatRun(res))
}

// NotifyBatch reports the outcome of a bridge batch.
func (t *Telegram) NotifyBatch(ctx context.Context, res *bridge.BatchResult) error {
	if res == nil {
		return nil
	}
	return t.SendMessage(ctx, FormatBatch(res))
}

// NotifyError reports an operation failure.
func (t *Telegram) NotifyError(ctx context.Context, operation string, err error) error {
	return t.SendMessage(ctx, fmt.Sprintf("⚠️ <b>%s failed</b>\n%s", esc(operation), esc(err.Error())))
}

// FormatRun renders a crawl summary.
func FormatRun(res *crawl.RunResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🔎 <b>Crawl %s</b> (%s)\n", esc(res.SearchTerm), esc(res.CVKey))
	fmt.Fprintf(&sb, "Pages: %d (failed %d)\n", res.PagesProcessed, res.PagesFailed)
	fmt.Fprintf(&sb, "New: %d, duplicates: %d\n", res.NewJobs, res.DuplicateJobs)
	if res.EarlyExit {
		fmt.Fprintf(&sb, "Early exit on page %d, saved ~%d pages ($%.2f)\n",
			res.ExitPage, res.EstimatedPagesSaved, res.EstimatedCostSaved)
	} else {
		fmt.Fprintf(&sb, "Ended: %s\n", esc(string(res.EndReason)))
	}
	return sb.String()
}

// FormatStale renders the stale application list.
func FormatStale(apps []db.StaleApplication) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "⏳ <b>%d applications stuck in PREPARING</b>\n", len(apps))
	for _, a := range apps {
		fmt.Fprintf(&sb, "• <a href=\"%s\">%s</a> at %s, since %s\n",
			esc(a.JobURL), esc(a.Title), esc(a.Company), a.UpdatedAt.Format("2006-01-02"))
	}
	return sb.String()
}

// FormatBatch renders a bridge batch result.
func FormatBatch(res *bridge.BatchResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📮 <b>Queued %d applications</b>, %d failed\n", res.Queued, res.Failed)
	for _, w := range res.Warnings {
		fmt.Fprintf(&sb, "⚠️ %s\n", esc(w))
	}
	for _, e := range res.Errors {
		fmt.Fprintf(&sb, "❌ %s: %s\n", esc(e.JobTitle), esc(e.Details))
	}
	return sb.String()
}

func esc(s string) string {
	return html.EscapeString(s)
}

// splitMessage breaks text on line boundaries into chunks of at most limit
// bytes. A single line longer than limit is cut on a rune boundary.
func splitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}
	var chunks []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
	}
	for _, line := range strings.SplitAfter(text, "\n") {
		for len(line) > limit {
			flush()
			cut := limit
			for cut > 0 && !isRuneStart(line[cut]) {
				cut--
			}
			chunks = append(chunks, line[:cut])
			line = line[cut:]
		}
		if cur.Len()+len(line) > limit {
			flush()
		}
		cur.WriteString(line)
	}
	flush()
	return chunks
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
