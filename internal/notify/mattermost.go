package notify

import (
	"context"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// Mattermost posts to an incoming webhook.
type Mattermost struct {
	client   *resty.Client
	webhook  string
	channel  string
	username string
}

func NewMattermost(webhook, channel, username string) *Mattermost {
	return &Mattermost{
		client:   resty.New(),
		webhook:  webhook,
		channel:  channel,
		username: username,
	}
}

type mattermostPayload struct {
	Channel  string `json:"channel,omitempty"`
	Username string `json:"username,omitempty"`
	Text     string `json:"text"`
}

func (m *Mattermost) Name() string {
	return "mattermost"
}

func (m *Mattermost) Notify(ctx context.Context, msg *Message) error {
	text := msg.Text
	if msg.Title != "" {
		text = "#### " + msg.Title + "\n" + text
	}
	if msg.Link != "" {
		text += "\n" + msg.Link
	}

	resp, err := m.client.R().
		SetContext(ctx).
		SetBody(&mattermostPayload{Channel: m.channel, Username: m.username, Text: text}).
		Post(m.webhook)
	if err != nil {
		return errors.Wrap(err, "Failed to call mattermost webhook")
	}
	if resp.IsError() {
		return errors.Errorf("mattermost webhook returned %s: %s", resp.Status(), resp.String())
	}
	return nil
}
