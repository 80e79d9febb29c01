package store

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/abdusco/shrinkly/internal/kv"
	"github.com/abdusco/shrinkly/internal/shortcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)}
}

func newTestStore(t *testing.T, backend kv.Store, opts ...Option) *Store {
	t.Helper()
	s, err := New(context.Background(), backend, opts...)
	require.NoError(t, err)
	return s
}

func snapshot(t *testing.T, backend kv.Store) string {
	t.Helper()
	raw, found, err := backend.Get(context.Background(), DefaultKey)
	require.NoError(t, err)
	if !found {
		return ""
	}
	return string(raw)
}

func TestNew_EmptyWhenNoSnapshot(t *testing.T) {
	s := newTestStore(t, kv.NewMemory())
	assert.Empty(t, s.List())
	assert.NotNil(t, s.List())
}

func TestNew_MalformedSnapshot(t *testing.T) {
	backend := kv.NewMemory()
	require.NoError(t, backend.Set(context.Background(), DefaultKey, []byte(`{not json`)))

	_, err := New(context.Background(), backend)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse snapshot")
}

func TestCreate(t *testing.T) {
	clock := newClock()
	backend := kv.NewMemory()
	s := newTestStore(t, backend, WithClock(clock.Now))

	link, err := s.Create(context.Background(), "https://example.com/some/long/path?q=1")
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/some/long/path?q=1", link.OriginalURL)
	assert.Equal(t, 0, link.Clicks)
	assert.Empty(t, link.ClickHistory)
	assert.NotNil(t, link.ClickHistory)
	assert.True(t, shortcode.Valid(link.ShortCode), "code %q", link.ShortCode)
	assert.Equal(t, DefaultBaseURL+link.ShortCode, link.ShortURL)
	assert.Equal(t, "2024-05-01T09:30:00.000Z", link.CreatedAt.String())
	assert.Equal(t, "1714555800000", link.ID)

	assert.Contains(t, snapshot(t, backend), `"clickHistory":[]`)
}

func TestCreate_PrefixesScheme(t *testing.T) {
	s := newTestStore(t, kv.NewMemory())

	link, err := s.Create(context.Background(), "example.com/path")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/path", link.OriginalURL)
}

func TestCreate_NewestFirst(t *testing.T) {
	clock := newClock()
	s := newTestStore(t, kv.NewMemory(), WithClock(clock.Now))

	first, err := s.Create(context.Background(), "https://one.example")
	require.NoError(t, err)
	clock.Advance(time.Second)
	second, err := s.Create(context.Background(), "https://two.example")
	require.NoError(t, err)

	links := s.List()
	require.Len(t, links, 2)
	assert.Equal(t, second.ID, links[0].ID)
	assert.Equal(t, first.ID, links[1].ID)
}

func TestCreate_UniqueIDsWithinSameMillisecond(t *testing.T) {
	clock := newClock()
	s := newTestStore(t, kv.NewMemory(), WithClock(clock.Now))

	seen := make(map[string]bool)
	for range 5 {
		link, err := s.Create(context.Background(), "https://example.com")
		require.NoError(t, err)
		assert.False(t, seen[link.ID], "duplicate id %s", link.ID)
		seen[link.ID] = true
	}
}

func TestCreate_IDsContinueAfterReload(t *testing.T) {
	clock := newClock()
	backend := kv.NewMemory()

	s := newTestStore(t, backend, WithClock(clock.Now))
	first, err := s.Create(context.Background(), "https://example.com")
	require.NoError(t, err)

	reloaded := newTestStore(t, backend, WithClock(clock.Now))
	second, err := reloaded.Create(context.Background(), "https://example.com")
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
}

func TestCreate_Rejected(t *testing.T) {
	tests := []string{"", "   ", "not a url", "https://", "http://"}

	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			backend := kv.NewMemory()
			s := newTestStore(t, backend)
			_, err := s.Create(context.Background(), "https://kept.example")
			require.NoError(t, err)
			before := snapshot(t, backend)

			_, err = s.Create(context.Background(), input)
			assert.ErrorIs(t, err, ErrInvalidURL)
			assert.Len(t, s.List(), 1)
			assert.Equal(t, before, snapshot(t, backend))
		})
	}
}

func TestCreate_CodesMayCollideByDefault(t *testing.T) {
	opts := func() Option { return WithCodeGenerator(shortcode.NewGenerator(rand.NewPCG(9, 9))) }

	a := newTestStore(t, kv.NewMemory(), opts())
	b := newTestStore(t, kv.NewMemory(), opts())
	la, err := a.Create(context.Background(), "https://a.example")
	require.NoError(t, err)
	lb, err := b.Create(context.Background(), "https://b.example")
	require.NoError(t, err)
	assert.Equal(t, la.ShortCode, lb.ShortCode)

	// Same seed within one store: reset the generator between creates.
	s := newTestStore(t, kv.NewMemory(), opts())
	l1, err := s.Create(context.Background(), "https://a.example")
	require.NoError(t, err)
	s.codes = shortcode.NewGenerator(rand.NewPCG(9, 9))
	l2, err := s.Create(context.Background(), "https://b.example")
	require.NoError(t, err)

	assert.Equal(t, l1.ShortCode, l2.ShortCode)
	assert.Equal(t, l1.ShortURL, l2.ShortURL)
	assert.NotEqual(t, l1.ID, l2.ID)
	assert.Len(t, s.List(), 2)
}

func TestCreate_UniqueCodes(t *testing.T) {
	s := newTestStore(t, kv.NewMemory(),
		WithUniqueCodes(true),
		WithCodeGenerator(shortcode.NewGenerator(rand.NewPCG(9, 9))),
	)
	l1, err := s.Create(context.Background(), "https://a.example")
	require.NoError(t, err)

	s.codes = shortcode.NewGenerator(rand.NewPCG(9, 9))
	l2, err := s.Create(context.Background(), "https://b.example")
	require.NoError(t, err)

	assert.NotEqual(t, l1.ShortCode, l2.ShortCode)
}

func TestCreate_BaseURL(t *testing.T) {
	s := newTestStore(t, kv.NewMemory(), WithBaseURL("https://go.example"))

	link, err := s.Create(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, "https://go.example/"+link.ShortCode, link.ShortURL)
}

func TestRecordClick(t *testing.T) {
	clock := newClock()
	s := newTestStore(t, kv.NewMemory(), WithClock(clock.Now))

	link, err := s.Create(context.Background(), "https://example.com")
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		clock.Advance(time.Minute)
		updated, ok, err := s.RecordClick(context.Background(), link.ID, Visitor{UserAgent: "test-agent", IP: "10.0.0.1"})
		require.NoError(t, err)
		require.True(t, ok)

		assert.Equal(t, i, updated.Clicks)
		require.Len(t, updated.ClickHistory, i)
		last := updated.ClickHistory[i-1]
		assert.Equal(t, "test-agent", last.UserAgent)
		assert.Equal(t, "10.0.0.1", last.IP)
		assert.Equal(t, NewTimestamp(clock.Now()), last.Timestamp)
	}

	stored, ok := s.Get(link.ID)
	require.True(t, ok)
	assert.Equal(t, 3, stored.Clicks)
	assert.Len(t, stored.ClickHistory, stored.Clicks)
}

func TestRecordClick_TimestampsNeverGoBackwards(t *testing.T) {
	clock := newClock()
	s := newTestStore(t, kv.NewMemory(), WithClock(clock.Now))

	link, err := s.Create(context.Background(), "https://example.com")
	require.NoError(t, err)

	_, _, err = s.RecordClick(context.Background(), link.ID, Visitor{})
	require.NoError(t, err)
	clock.Advance(-time.Hour)
	updated, _, err := s.RecordClick(context.Background(), link.ID, Visitor{})
	require.NoError(t, err)

	require.Len(t, updated.ClickHistory, 2)
	assert.False(t, updated.ClickHistory[1].Timestamp.Before(updated.ClickHistory[0].Timestamp))
}

func TestRecordClick_UnknownIDIsNoop(t *testing.T) {
	backend := kv.NewMemory()
	s := newTestStore(t, backend)
	_, err := s.Create(context.Background(), "https://example.com")
	require.NoError(t, err)
	before := snapshot(t, backend)

	var events int
	s.Subscribe(func(Event) { events++ })

	_, ok, err := s.RecordClick(context.Background(), "does-not-exist", Visitor{UserAgent: "x"})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, before, snapshot(t, backend))
	assert.Zero(t, events)
}

func TestRecordClick_OmitsUnknownAddress(t *testing.T) {
	backend := kv.NewMemory()
	s := newTestStore(t, backend)
	link, err := s.Create(context.Background(), "https://example.com")
	require.NoError(t, err)

	_, _, err = s.RecordClick(context.Background(), link.ID, Visitor{UserAgent: "curl/8.0"})
	require.NoError(t, err)

	assert.NotContains(t, snapshot(t, backend), `"ip"`)
}

func TestDelete(t *testing.T) {
	backend := kv.NewMemory()
	s := newTestStore(t, backend)

	keep, err := s.Create(context.Background(), "https://keep.example")
	require.NoError(t, err)
	drop, err := s.Create(context.Background(), "https://drop.example")
	require.NoError(t, err)

	require.NoError(t, s.Delete(context.Background(), drop.ID))
	links := s.List()
	require.Len(t, links, 1)
	assert.Equal(t, keep.ID, links[0].ID)
	_, ok := s.Get(drop.ID)
	assert.False(t, ok)

	before := snapshot(t, backend)
	require.NoError(t, s.Delete(context.Background(), drop.ID))
	assert.Equal(t, before, snapshot(t, backend))
	assert.Len(t, s.List(), 1)
}

func TestRoundTrip(t *testing.T) {
	clock := newClock()
	backend := kv.NewMemory()
	s := newTestStore(t, backend, WithClock(clock.Now))

	for _, u := range []string{"https://a.example", "https://b.example", "https://c.example"} {
		clock.Advance(1234 * time.Microsecond)
		link, err := s.Create(context.Background(), u)
		require.NoError(t, err)
		clock.Advance(time.Second)
		_, _, err = s.RecordClick(context.Background(), link.ID, Visitor{UserAgent: "ua", IP: "127.0.0.1"})
		require.NoError(t, err)
	}

	reloaded := newTestStore(t, backend)

	want, err := json.Marshal(s.List())
	require.NoError(t, err)
	got, err := json.Marshal(reloaded.List())
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(got))
	assert.Equal(t, snapshot(t, backend), string(got))
}

func TestList_ReturnsCopies(t *testing.T) {
	s := newTestStore(t, kv.NewMemory())
	link, err := s.Create(context.Background(), "https://example.com")
	require.NoError(t, err)
	_, _, err = s.RecordClick(context.Background(), link.ID, Visitor{UserAgent: "ua"})
	require.NoError(t, err)

	links := s.List()
	links[0].Clicks = 99
	links[0].ClickHistory[0].UserAgent = "mutated"

	stored, _ := s.Get(link.ID)
	assert.Equal(t, 1, stored.Clicks)
	assert.Equal(t, "ua", stored.ClickHistory[0].UserAgent)
}

func TestSubscribe(t *testing.T) {
	s := newTestStore(t, kv.NewMemory())

	var kinds []EventKind
	unsubscribe := s.Subscribe(func(e Event) { kinds = append(kinds, e.Kind) })

	link, err := s.Create(context.Background(), "https://example.com")
	require.NoError(t, err)
	_, _, err = s.RecordClick(context.Background(), link.ID, Visitor{})
	require.NoError(t, err)
	require.NoError(t, s.Delete(context.Background(), "unknown"))
	require.NoError(t, s.Delete(context.Background(), link.ID))

	assert.Equal(t, []EventKind{EventCreated, EventClicked, EventDeleted}, kinds)

	unsubscribe()
	_, err = s.Create(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Len(t, kinds, 3)
}

func TestSubscribe_CanReadStore(t *testing.T) {
	s := newTestStore(t, kv.NewMemory())

	var seen int
	s.Subscribe(func(Event) { seen = len(s.List()) })

	_, err := s.Create(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, seen)
}

type failingKV struct {
	*kv.Memory
	fail bool
}

func (f *failingKV) Set(ctx context.Context, key string, value []byte) error {
	if f.fail {
		return errors.New("disk full")
	}
	return f.Memory.Set(ctx, key, value)
}

func TestPersistFailureLeavesCollectionUntouched(t *testing.T) {
	backend := &failingKV{Memory: kv.NewMemory()}
	s := newTestStore(t, backend)

	link, err := s.Create(context.Background(), "https://example.com")
	require.NoError(t, err)

	backend.fail = true

	_, err = s.Create(context.Background(), "https://other.example")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "disk full"))

	_, _, err = s.RecordClick(context.Background(), link.ID, Visitor{})
	require.Error(t, err)

	require.Error(t, s.Delete(context.Background(), link.ID))

	links := s.List()
	require.Len(t, links, 1)
	assert.Equal(t, 0, links[0].Clicks)
}
