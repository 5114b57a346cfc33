// Package notify delivers grading summaries to chat channels.
package notify

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bigredeye/scoreledger/internal/config"
)

type Message struct {
	Title string
	Text  string
	Link  string
}

func (m *Message) String() string {
	parts := []string{}
	for _, p := range []string{m.Title, m.Text, m.Link} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n")
}

type Notifier interface {
	Name() string
	Notify(ctx context.Context, msg *Message) error
}

type Stats struct {
	Delivered int
	Failed    int
}

// Fanout sends each message to every notifier in parallel. A failing
// notifier never affects the others.
type Fanout struct {
	notifiers []Notifier
	logger    *zap.Logger
}

func NewFanout(logger *zap.Logger, notifiers ...Notifier) *Fanout {
	return &Fanout{notifiers: notifiers, logger: logger.Named("notify")}
}

func FromConfig(conf *config.Config, logger *zap.Logger) (*Fanout, error) {
	var notifiers []Notifier
	if mm := conf.Notify.Mattermost; mm.WebhookURL != "" {
		notifiers = append(notifiers, NewMattermost(mm.WebhookURL, mm.Channel, mm.Username))
	}
	if tg := conf.Notify.Telegram; tg.BotToken != "" {
		bot, err := NewTelegram(tg.BotToken, tg.ChatID)
		if err != nil {
			return nil, errors.Wrap(err, "Failed to create telegram notifier")
		}
		notifiers = append(notifiers, bot)
	}
	return NewFanout(logger, notifiers...), nil
}

func (f *Fanout) Len() int {
	return len(f.notifiers)
}

func (f *Fanout) Deliver(ctx context.Context, msg *Message) Stats {
	delivered := atomic.NewInt64(0)
	failed := atomic.NewInt64(0)

	g := errgroup.Group{}
	for _, n := range f.notifiers {
		n := n
		g.Go(func() error {
			if err := n.Notify(ctx, msg); err != nil {
				failed.Inc()
				f.logger.Warn("Failed to deliver notification", zap.String("notifier", n.Name()), zap.Error(err))
				return nil
			}
			delivered.Inc()
			f.logger.Debug("Delivered notification", zap.String("notifier", n.Name()))
			return nil
		})
	}
	_ = g.Wait()

	return Stats{Delivered: int(delivered.Load()), Failed: int(failed.Load())}
}
