// Package notification announces sweep progress and results
package notification

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	tb "gopkg.in/tucnak/telebot.v2"

	"github.com/raykavin/backsweep/pkg/logger"
	"github.com/raykavin/backsweep/pkg/metric"
)

// StatusFunc reports the progress of the running sweep
type StatusFunc func() string

// Telegram implements core.Notifier and answers /status and /best while a sweep runs
type Telegram struct {
	client *tb.Bot
	users  []int64
	log    logger.Logger
	status StatusFunc

	mu   sync.RWMutex
	best *metric.Aggregator
}

// Option is a function that configures a Telegram instance
type Option func(*Telegram)

// WithStatus sets the function answering /status
func WithStatus(status StatusFunc) Option {
	return func(t *Telegram) {
		t.status = status
	}
}

// WithLogger sets the logger used for delivery failures
func WithLogger(log logger.Logger) Option {
	return func(t *Telegram) {
		t.log = log
	}
}

// NewTelegram creates a Telegram notifier for the given users
func NewTelegram(token string, users []int64, options ...Option) (*Telegram, error) {
	bot := &Telegram{users: users}
	for _, option := range options {
		option(bot)
	}

	poller := &tb.LongPoller{Timeout: 10 * time.Second}
	client, err := tb.NewBot(tb.Settings{
		ParseMode: tb.ModeMarkdown,
		Token:     token,
		Poller:    tb.NewMiddlewarePoller(poller, bot.authorized),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	bot.client = client

	if err := client.SetCommands([]tb.Command{
		{Text: "/help", Description: "Display help instructions"},
		{Text: "/status", Description: "Progress of the running sweep"},
		{Text: "/best", Description: "Best parameter sets so far"},
	}); err != nil {
		return nil, fmt.Errorf("failed to set commands: %w", err)
	}

	client.Handle("/help", bot.HelpHandle)
	client.Handle("/status", bot.StatusHandle)
	client.Handle("/best", bot.BestHandle)

	return bot, nil
}

// authorized lets through messages from the configured users only
func (t *Telegram) authorized(u *tb.Update) bool {
	if u.Message == nil || u.Message.Sender == nil {
		return false
	}

	if slices.Contains(t.users, u.Message.Sender.ID) {
		return true
	}

	if t.log != nil {
		t.log.WithField("user", u.Message.Sender.ID).Warn("unauthorized telegram user")
	}
	return false
}

// Start begins polling for commands
func (t *Telegram) Start() {
	go t.client.Start()
}

// Stop ends polling
func (t *Telegram) Stop() {
	t.client.Stop()
}

// SetBest replaces the results answered by /best
func (t *Telegram) SetBest(agg *metric.Aggregator) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.best = agg
}

// Notify sends a message to all authorized users
func (t *Telegram) Notify(text string) {
	for _, user := range t.users {
		t.sendMessage(&tb.User{ID: user}, text)
	}
}

// OnError sends an error notification
func (t *Telegram) OnError(err error) {
	t.Notify(FormatError(err))
}

func (t *Telegram) sendMessage(to *tb.User, text string, options ...interface{}) {
	if _, err := t.client.Send(to, text, options...); err != nil && t.log != nil {
		t.log.WithError(err).Error("failed to send telegram message")
	}
}

// HelpHandle lists the available commands
func (t *Telegram) HelpHandle(m *tb.Message) {
	commands, err := t.client.GetCommands()
	if err != nil {
		t.sendMessage(m.Sender, "Failed to load commands.")
		return
	}

	lines := make([]string, 0, len(commands))
	for _, command := range commands {
		lines = append(lines, fmt.Sprintf("/%s - %s", command.Text, command.Description))
	}
	t.sendMessage(m.Sender, strings.Join(lines, "\n"))
}

// StatusHandle answers with the sweep progress
func (t *Telegram) StatusHandle(m *tb.Message) {
	status := "No sweep running."
	if t.status != nil {
		status = t.status()
	}
	t.sendMessage(m.Sender, fmt.Sprintf("Status: `%s`", status))
}

// BestHandle answers with the best results received through SetBest
func (t *Telegram) BestHandle(m *tb.Message) {
	t.mu.RLock()
	best := t.best
	t.mu.RUnlock()

	t.sendMessage(m.Sender, FormatSummary("Best so far", best, 5))
}
