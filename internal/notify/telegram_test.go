package notify

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/jobmatch/internal/bridge"
	"github.com/jonathan/jobmatch/internal/crawl"
	"github.com/jonathan/jobmatch/internal/db"
)

type recordingSender struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (r *recordingSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if r.err != nil {
		return tgbotapi.Message{}, r.err
	}
	r.sent = append(r.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

func newTestTelegram(s sender) *Telegram {
	return &Telegram{api: s, chatID: 42, logger: log.New(io.Discard, "", 0)}
}

func TestDisabledTelegramIsNoop(t *testing.T) {
	tg, err := NewTelegram("", 1, log.New(io.Discard, "", 0))
	require.NoError(t, err)
	assert.False(t, tg.Enabled())
	assert.NoError(t, tg.SendMessage(context.Background(), "hi"))

	var nilTG *Telegram
	assert.False(t, nilTG.Enabled())
	assert.NoError(t, nilTG.NotifyRun(context.Background(), &crawl.RunResult{}))
}

func TestNotifyRun(t *testing.T) {
	rec := &recordingSender{}
	tg := newTestTelegram(rec)

	err := tg.NotifyRun(context.Background(), &crawl.RunResult{
		RunID: uuid.New(), SearchTerm: "golang <remote>", CVKey: "abcd",
		PagesProcessed: 4, NewJobs: 60, DuplicateJobs: 20,
		EarlyExit: true, ExitPage: 4, EstimatedPagesSaved: 6, EstimatedCostSaved: 0.24,
	})
	require.NoError(t, err)
	require.Len(t, rec.sent, 1)
	msg := rec.sent[0]
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Equal(t, tgbotapi.ModeHTML, msg.ParseMode)
	assert.Contains(t, msg.Text, "golang &lt;remote&gt;")
	assert.Contains(t, msg.Text, "Early exit on page 4, saved ~6 pages ($0.24)")
}

func TestNotifyStale(t *testing.T) {
	rec := &recordingSender{}
	tg := newTestTelegram(rec)

	require.NoError(t, tg.NotifyStale(context.Background(), nil))
	assert.Empty(t, rec.sent, "nothing to report")

	apps := []db.StaleApplication{{
		ApplicationRecord: db.ApplicationRecord{Status: "PREPARING", UpdatedAt: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)},
		Title:             "Go Dev", Company: "ACME & Co", JobURL: "https://www.stepstone.de/job/1",
	}}
	require.NoError(t, tg.NotifyStale(context.Background(), apps))
	require.Len(t, rec.sent, 1)
	assert.Contains(t, rec.sent[0].Text, "1 applications stuck in PREPARING")
	assert.Contains(t, rec.sent[0].Text, "ACME &amp; Co, since 2026-01-02")
}

func TestNotifyBatchAndError(t *testing.T) {
	rec := &recordingSender{}
	tg := newTestTelegram(rec)

	require.NoError(t, tg.NotifyBatch(context.Background(), &bridge.BatchResult{
		Queued: 2, Failed: 1,
		Warnings: []string{"ACME: generic address"},
		Errors:   []bridge.ItemError{{JobTitle: "Dev", Details: "context build failed"}},
	}))
	require.NoError(t, tg.NotifyError(context.Background(), "crawl", errors.New("timeout")))
	require.Len(t, rec.sent, 2)
	assert.Contains(t, rec.sent[0].Text, "Queued 2 applications</b>, 1 failed")
	assert.Contains(t, rec.sent[0].Text, "Dev: context build failed")
	assert.Contains(t, rec.sent[1].Text, "crawl failed")

	failing := newTestTelegram(&recordingSender{err: errors.New("403")})
	assert.ErrorContains(t, failing.SendMessage(context.Background(), "x"), "403")
}

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitMessage("short", 10))

	text := "line one\nline two\nline three\n"
	chunks := splitMessage(text, 12)
	assert.Equal(t, []string{"line one\n", "line two\n", "line three\n"}, chunks)
	assert.Equal(t, text, strings.Join(chunks, ""))

	long := strings.Repeat("ä", 10) // 20 bytes
	chunks = splitMessage(long, 7)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 7)
		assert.True(t, strings.ToValidUTF8(c, "?") == c, "chunk %q splits a rune", c)
	}
	assert.Equal(t, long, strings.Join(chunks, ""))
}
