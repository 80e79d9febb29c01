package store

import (
	"encoding/json"
	"time"
)

const timestampLayout = "2006-01-02T15:04:05.000Z"

// Timestamp is a UTC instant serialized as an ISO-8601 string with
// millisecond precision, e.g. 2024-05-01T09:30:00.000Z.
type Timestamp time.Time

func NewTimestamp(t time.Time) Timestamp {
	return Timestamp(t.UTC().Truncate(time.Millisecond))
}

func ParseTimestamp(s string) (Timestamp, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return Timestamp{}, err
	}
	return NewTimestamp(t), nil
}

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(ts.String())
}

func (ts *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*ts = parsed
	return nil
}

func (ts Timestamp) String() string {
	return time.Time(ts).UTC().Format(timestampLayout)
}

func (ts Timestamp) Time() time.Time {
	return time.Time(ts)
}

func (ts Timestamp) Before(other Timestamp) bool {
	return ts.Time().Before(other.Time())
}

func (ts Timestamp) Compare(other Timestamp) int {
	return ts.Time().Compare(other.Time())
}
