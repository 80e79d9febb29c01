// Package notify delivers fire-and-forget notices about link changes.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/abdusco/shrinkly/internal/store"
	"github.com/rs/zerolog/log"
)

type Notice struct {
	Kind        string `json:"kind"`
	Title       string `json:"title"`
	Description string `json:"description"`
	LinkID      string `json:"linkId,omitempty"`
	ShortURL    string `json:"shortUrl,omitempty"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}

func Created(link store.Link) Notice {
	return Notice{
		Kind:        string(store.EventCreated),
		Title:       "URL Shortened Successfully!",
		Description: "Your short URL has been created and copied to clipboard.",
		LinkID:      link.ID,
		ShortURL:    link.ShortURL,
	}
}

func Deleted(id string) Notice {
	return Notice{
		Kind:        string(store.EventDeleted),
		Title:       "URL Deleted",
		Description: "The shortened URL has been removed.",
		LinkID:      id,
	}
}

// ForEvent maps a store event to the notice shown for it. Clicks produce
// no notice.
func ForEvent(e store.Event) (Notice, bool) {
	switch e.Kind {
	case store.EventCreated:
		return Created(e.Link), true
	case store.EventDeleted:
		n := Deleted(e.Link.ID)
		n.ShortURL = e.Link.ShortURL
		return n, true
	default:
		return Notice{}, false
	}
}

// Forward returns a store subscriber that sends notices to n. Delivery
// errors are logged and dropped.
func Forward(ctx context.Context, n Notifier) func(store.Event) {
	return func(e store.Event) {
		notice, ok := ForEvent(e)
		if !ok {
			return
		}
		if err := n.Notify(ctx, notice); err != nil {
			log.Warn().Err(err).Str("kind", notice.Kind).Str("link_id", notice.LinkID).Msg("failed to deliver notice")
		}
	}
}

// Log writes notices to the global logger.
type Log struct{}

func (Log) Notify(_ context.Context, n Notice) error {
	log.Info().
		Str("kind", n.Kind).
		Str("link_id", n.LinkID).
		Str("short_url", n.ShortURL).
		Str("description", n.Description).
		Msg(n.Title)
	return nil
}

// Publisher is the subset of *nats.Conn the NATS notifier needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATS publishes each notice as JSON to <prefix>.<kind>.
type NATS struct {
	conn   Publisher
	prefix string
}

func NewNATS(conn Publisher, prefix string) *NATS {
	return &NATS{conn: conn, prefix: prefix}
}

func (n *NATS) Subject(kind string) string {
	return n.prefix + "." + kind
}

func (n *NATS) Notify(_ context.Context, notice Notice) error {
	data, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("failed to encode notice: %w", err)
	}
	if err := n.conn.Publish(n.Subject(notice.Kind), data); err != nil {
		return fmt.Errorf("failed to publish notice: %w", err)
	}
	return nil
}

// Multi fans a notice out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notice) error {
	var errs []error
	for _, notifier := range m {
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
