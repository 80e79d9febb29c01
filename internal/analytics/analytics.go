// Package analytics derives summary statistics from a link collection.
// Everything here is a pure function of its input and is recomputed on
// every call.
package analytics

import (
	"cmp"
	"math"
	"slices"

	"github.com/abdusco/shrinkly/internal/store"
	"github.com/samber/lo"
)

const (
	DefaultTop    = 5
	DefaultRecent = 10
)

// Activity is one click event tagged with the link it belongs to.
type Activity struct {
	LinkID      string          `json:"linkId"`
	ShortURL    string          `json:"url"`
	OriginalURL string          `json:"originalUrl"`
	Timestamp   store.Timestamp `json:"timestamp"`
	UserAgent   string          `json:"userAgent"`
}

type Summary struct {
	TotalLinks          int          `json:"totalLinks"`
	TotalClicks         int          `json:"totalClicks"`
	AverageClicks       int          `json:"averageClicks"`
	RecentActivityCount int          `json:"recentActivityCount"`
	TopPerforming       []store.Link `json:"topPerforming"`
	RecentActivity      []Activity   `json:"recentActivity"`
}

func TotalLinks(links []store.Link) int {
	return len(links)
}

func TotalClicks(links []store.Link) int {
	return lo.SumBy(links, func(l store.Link) int { return l.Clicks })
}

// AverageClicks is total clicks over total links rounded to the nearest
// integer, halves rounding up. Zero for an empty collection.
func AverageClicks(links []store.Link) int {
	if len(links) == 0 {
		return 0
	}
	return int(math.Round(float64(TotalClicks(links)) / float64(len(links))))
}

// TopPerforming returns the n links with the most clicks. Links with equal
// counts keep their relative order.
func TopPerforming(links []store.Link, n int) []store.Link {
	sorted := make([]store.Link, len(links))
	copy(sorted, links)
	slices.SortStableFunc(sorted, func(a, b store.Link) int {
		return cmp.Compare(b.Clicks, a.Clicks)
	})
	return sorted[:clamp(n, len(sorted))]
}

// RecentActivity flattens every link's click history and returns the n
// most recent events, newest first.
func RecentActivity(links []store.Link, n int) []Activity {
	events := lo.FlatMap(links, func(l store.Link, _ int) []Activity {
		return lo.Map(l.ClickHistory, func(c store.ClickEvent, _ int) Activity {
			return Activity{
				LinkID:      l.ID,
				ShortURL:    l.ShortURL,
				OriginalURL: l.OriginalURL,
				Timestamp:   c.Timestamp,
				UserAgent:   c.UserAgent,
			}
		})
	})
	slices.SortStableFunc(events, func(a, b Activity) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	return events[:clamp(n, len(events))]
}

// Summarize computes every statistic with n values of top and recent.
// Non-positive values fall back to the defaults.
func Summarize(links []store.Link, top, recent int) Summary {
	if top <= 0 {
		top = DefaultTop
	}
	if recent <= 0 {
		recent = DefaultRecent
	}

	activity := RecentActivity(links, recent)
	return Summary{
		TotalLinks:          TotalLinks(links),
		TotalClicks:         TotalClicks(links),
		AverageClicks:       AverageClicks(links),
		RecentActivityCount: len(activity),
		TopPerforming:       TopPerforming(links, top),
		RecentActivity:      activity,
	}
}

func clamp(n, size int) int {
	return max(0, min(n, size))
}
