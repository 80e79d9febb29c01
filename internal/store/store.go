// Package store owns the collection of shortened links. Every mutation
// rewrites the whole collection to a single key of a kv.Store.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/abdusco/shrinkly/internal/kv"
	"github.com/abdusco/shrinkly/internal/shortcode"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

const (
	DefaultKey     = "shortened-urls"
	DefaultBaseURL = "https://shrink.ly/"

	maxCodeAttempts = 10
)

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithCodeGenerator(g *shortcode.Generator) Option {
	return func(s *Store) { s.codes = g }
}

func WithBaseURL(base string) Option {
	return func(s *Store) {
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		s.baseURL = base
	}
}

// WithUniqueCodes makes Create regenerate a code that is already in use.
// Off by default: codes may collide.
func WithUniqueCodes(unique bool) Option {
	return func(s *Store) { s.uniqueCodes = unique }
}

func WithKey(key string) Option {
	return func(s *Store) { s.key = key }
}

// Store is safe for concurrent use. Mutations are serialized and only
// become visible once the snapshot has been written.
type Store struct {
	mu          sync.Mutex
	kv          kv.Store
	key         string
	links       []Link
	lastID      int64
	now         func() time.Time
	codes       *shortcode.Generator
	baseURL     string
	uniqueCodes bool

	subsMu  sync.RWMutex
	subs    map[int]func(Event)
	nextSub int
}

// New loads the persisted snapshot, if any. A malformed snapshot is
// returned as an error.
func New(ctx context.Context, backend kv.Store, opts ...Option) (*Store, error) {
	s := &Store{
		kv:      backend,
		key:     DefaultKey,
		now:     time.Now,
		codes:   shortcode.NewGenerator(nil),
		baseURL: DefaultBaseURL,
		subs:    make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load(ctx context.Context) error {
	raw, found, err := s.kv.Get(ctx, s.key)
	if err != nil {
		return fmt.Errorf("failed to read snapshot %q: %w", s.key, err)
	}
	if !found {
		log.Debug().Str("key", s.key).Msg("no snapshot, starting empty")
		s.links = []Link{}
		return nil
	}

	var links []Link
	if err := json.Unmarshal(raw, &links); err != nil {
		return fmt.Errorf("failed to parse snapshot %q: %w", s.key, err)
	}
	if links == nil {
		links = []Link{}
	}
	for i := range links {
		if links[i].ClickHistory == nil {
			links[i].ClickHistory = []ClickEvent{}
		}
		if id, err := strconv.ParseInt(links[i].ID, 10, 64); err == nil && id > s.lastID {
			s.lastID = id
		}
	}
	s.links = links

	log.Info().Str("key", s.key).Int("links", len(links)).Msg("snapshot loaded")
	return nil
}

// Create validates rawURL, prepends a new record and persists.
func (s *Store) Create(ctx context.Context, rawURL string) (Link, error) {
	originalURL, err := NormalizeURL(rawURL)
	if err != nil {
		return Link{}, err
	}

	s.mu.Lock()
	code, err := s.nextCode()
	if err != nil {
		s.mu.Unlock()
		return Link{}, err
	}

	now := s.now()
	id := s.nextID(now)
	link := Link{
		ID:           strconv.FormatInt(id, 10),
		OriginalURL:  originalURL,
		ShortCode:    code,
		ShortURL:     s.baseURL + code,
		Clicks:       0,
		CreatedAt:    NewTimestamp(now),
		ClickHistory: []ClickEvent{},
	}

	next := make([]Link, 0, len(s.links)+1)
	next = append(next, link)
	next = append(next, s.links...)

	if err := s.persist(ctx, next); err != nil {
		s.mu.Unlock()
		log.Error().Err(err).Str("url", originalURL).Msg("failed to create link")
		return Link{}, err
	}
	s.links = next
	s.lastID = id
	s.mu.Unlock()

	log.Info().Str("id", link.ID).Str("short_code", code).Msg("link created")
	s.publish(Event{Kind: EventCreated, Link: link.clone()})
	return link.clone(), nil
}

// List returns a copy of the collection, newest first.
func (s *Store) List() []Link {
	s.mu.Lock()
	defer s.mu.Unlock()

	return lo.Map(s.links, func(l Link, _ int) Link { return l.clone() })
}

func (s *Store) Get(id string) (Link, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := lo.Find(s.links, func(l Link) bool { return l.ID == id })
	if !ok {
		return Link{}, false
	}
	return link.clone(), true
}

// Delete removes the record with the given id. Deleting an id that does
// not exist still rewrites the snapshot but changes nothing.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()

	removed, found := lo.Find(s.links, func(l Link) bool { return l.ID == id })
	next := lo.Filter(s.links, func(l Link, _ int) bool { return l.ID != id })

	if err := s.persist(ctx, next); err != nil {
		s.mu.Unlock()
		log.Error().Err(err).Str("id", id).Msg("failed to delete link")
		return err
	}
	s.links = next
	s.mu.Unlock()

	if !found {
		log.Debug().Str("id", id).Msg("delete of unknown link ignored")
		return nil
	}

	log.Info().Str("id", id).Msg("link deleted")
	s.publish(Event{Kind: EventDeleted, Link: removed.clone()})
	return nil
}

// RecordClick appends a click event to the link with the given id and
// increments its counter. An unknown id is a no-op reported as ok=false.
func (s *Store) RecordClick(ctx context.Context, id string, visitor Visitor) (Link, bool, error) {
	s.mu.Lock()

	idx := slices.IndexFunc(s.links, func(l Link) bool { return l.ID == id })
	if idx < 0 {
		s.mu.Unlock()
		log.Debug().Str("id", id).Msg("click on unknown link ignored")
		return Link{}, false, nil
	}

	link := s.links[idx].clone()
	at := NewTimestamp(s.now())
	if last, ok := link.lastClick(); ok && at.Before(last) {
		at = last
	}
	link.ClickHistory = append(link.ClickHistory, ClickEvent{
		Timestamp: at,
		UserAgent: visitor.UserAgent,
		IP:        visitor.IP,
	})
	link.Clicks++

	next := slices.Clone(s.links)
	next[idx] = link

	if err := s.persist(ctx, next); err != nil {
		s.mu.Unlock()
		log.Error().Err(err).Str("id", id).Msg("failed to record click")
		return Link{}, false, err
	}
	s.links = next
	s.mu.Unlock()

	log.Debug().Str("id", id).Int("clicks", link.Clicks).Str("ip", visitor.IP).Msg("click recorded")
	s.publish(Event{Kind: EventClicked, Link: link.clone()})
	return link.clone(), true, nil
}

// Subscribe registers fn to be called after every persisted mutation.
// Calls happen on the mutating goroutine, outside the store's lock.
func (s *Store) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn

	return func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) publish(e Event) {
	s.subsMu.RLock()
	subs := lo.Values(s.subs)
	s.subsMu.RUnlock()

	for _, fn := range subs {
		fn(e)
	}
}

func (s *Store) persist(ctx context.Context, links []Link) error {
	raw, err := json.Marshal(links)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := s.kv.Set(ctx, s.key, raw); err != nil {
		return fmt.Errorf("failed to write snapshot %q: %w", s.key, err)
	}
	return nil
}

// nextID is the creation time in Unix milliseconds, bumped past the last
// issued id so ids stay unique when two links are created within the same
// millisecond.
func (s *Store) nextID(now time.Time) int64 {
	id := now.UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	return id
}

func (s *Store) nextCode() (string, error) {
	if !s.uniqueCodes {
		return s.codes.Generate(), nil
	}

	for range maxCodeAttempts {
		code := s.codes.Generate()
		if !slices.ContainsFunc(s.links, func(l Link) bool { return l.ShortCode == code }) {
			return code, nil
		}
	}
	return "", ErrCodeSpaceExhausted
}
