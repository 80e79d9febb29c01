package store

// Link is one shortened URL and its click history. Clicks always equals
// len(ClickHistory).
type Link struct {
	ID           string       `json:"id"`
	OriginalURL  string       `json:"originalUrl"`
	ShortCode    string       `json:"shortCode"`
	ShortURL     string       `json:"shortUrl"`
	Clicks       int          `json:"clicks"`
	CreatedAt    Timestamp    `json:"createdAt"`
	ClickHistory []ClickEvent `json:"clickHistory"`
}

// ClickEvent is one recorded visit. IP is empty when the address of the
// visitor is unknown.
type ClickEvent struct {
	Timestamp Timestamp `json:"timestamp"`
	UserAgent string    `json:"userAgent"`
	IP        string    `json:"ip,omitempty"`
}

// Visitor describes who followed a link.
type Visitor struct {
	UserAgent string
	IP        string
}

func (l Link) clone() Link {
	history := make([]ClickEvent, len(l.ClickHistory))
	copy(history, l.ClickHistory)
	l.ClickHistory = history
	return l
}

func (l Link) lastClick() (Timestamp, bool) {
	if len(l.ClickHistory) == 0 {
		return Timestamp{}, false
	}
	return l.ClickHistory[len(l.ClickHistory)-1].Timestamp, true
}

type EventKind string

const (
	EventCreated EventKind = "created"
	EventDeleted EventKind = "deleted"
	EventClicked EventKind = "clicked"
)

// Event is delivered to subscribers after a mutation has been persisted.
type Event struct {
	Kind EventKind
	Link Link
}
