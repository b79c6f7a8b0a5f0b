package models

import (
	"encoding/json"
	"math"
	"sort"
	"time"
)

// ActivityEvent is one user interaction (query, like, dislike...) appended to an entity's log.
type ActivityEvent struct {
	ID          string    `json:"id" bson:"id"`
	Timestamp   time.Time `json:"-" bson:"timestamp"`
	ActorID     string    `json:"actor_id" bson:"actor_id"`
	Description string    `json:"description" bson:"description"`
}

type activityJSON struct {
	ID          string  `json:"id"`
	Timestamp   float64 `json:"timestamp"`
	ActorID     string  `json:"actor_id"`
	Description string  `json:"description"`
}

// MarshalJSON encodes Timestamp as Unix seconds with a fractional part.
func (e ActivityEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(activityJSON{
		ID:          e.ID,
		Timestamp:   UnixSeconds(e.Timestamp),
		ActorID:     e.ActorID,
		Description: e.Description,
	})
}

func (e *ActivityEvent) UnmarshalJSON(data []byte) error {
	var raw activityJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.ID = raw.ID
	e.Timestamp = FromUnixSeconds(raw.Timestamp)
	e.ActorID = raw.ActorID
	e.Description = raw.Description
	return nil
}

// UnixSeconds converts t to float seconds since the epoch. The zero time maps to 0.
func UnixSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / float64(time.Second)
}

// FromUnixSeconds is the inverse of UnixSeconds at microsecond precision.
func FromUnixSeconds(sec float64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(math.Round(frac*1e6))*int64(time.Microsecond)).UTC()
}

// SortActivityDesc returns a copy of events ordered newest first.
// Events with equal timestamps keep their insertion order.
func SortActivityDesc(events []ActivityEvent) []ActivityEvent {
	out := make([]ActivityEvent, len(events))
	copy(out, events)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}
