package notify

import (
	"context"
	"time"

	"go.uber.org/multierr"
)

// Kind tells a notifier which transition an alert reports.
type Kind string

const (
	KindDown      Kind = "down"
	KindRecovered Kind = "recovered"
)

// Alert is one site transition ready to be delivered.
type Alert struct {
	Kind  Kind
	URL   string
	Title string
	Text  string
	At    time.Time
}

type Notifier interface {
	Send(ctx context.Context, a Alert) error
}

// Multi fans an alert out to every notifier and returns all failures combined.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, a Alert) error {
	var err error
	for _, n := range m {
		if n == nil {
			continue
		}
		err = multierr.Append(err, n.Send(ctx, a))
	}
	return err
}

// Build returns the configured notifiers, skipping disabled ones.
func Build(slackWebhook string) Multi {
	var out Multi
	if s := NewSlack(slackWebhook); s != nil {
		out = append(out, s)
	}
	return out
}
