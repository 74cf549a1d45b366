package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	slackColorDown      = "#d00000"
	slackColorRecovered = "#2eb886"
	slackFooter         = "sitestatus"
)

// Slack posts alerts to an incoming webhook as one colored attachment.
type Slack struct {
	Webhook string
	Client  *http.Client
}

// NewSlack returns nil when no webhook is configured.
func NewSlack(webhook string) *Slack {
	if webhook == "" {
		return nil
	}
	return &Slack{
		Webhook: webhook,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type slackPayload struct {
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Color     string   `json:"color"`
	Title     string   `json:"title"`
	TitleLink string   `json:"title_link,omitempty"`
	Text      string   `json:"text"`
	Footer    string   `json:"footer"`
	TS        int64    `json:"ts,omitempty"`
	MrkdwnIn  []string `json:"mrkdwn_in"`
}

func slackMessage(a Alert) slackPayload {
	color := slackColorDown
	if a.Kind == KindRecovered {
		color = slackColorRecovered
	}
	att := slackAttachment{
		Color:     color,
		Title:     a.Title,
		TitleLink: a.URL,
		Text:      a.Text,
		Footer:    slackFooter,
		MrkdwnIn:  []string{"text"},
	}
	if !a.At.IsZero() {
		att.TS = a.At.Unix()
	}
	return slackPayload{
		// shown in push notifications and clients without attachment support
		Text:        fmt.Sprintf("%s: %s", a.Title, a.URL),
		Attachments: []slackAttachment{att},
	}
}

func (s *Slack) Send(ctx context.Context, a Alert) error {
	if s == nil || s.Webhook == "" {
		return errors.New("slack disabled")
	}
	body, err := json.Marshal(slackMessage(a))
	if err != nil {
		return fmt.Errorf("slack encode: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Webhook, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("slack send %s: %w", a.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("slack non-2xx for %s: %d", a.URL, resp.StatusCode)
	}
	return nil
}
