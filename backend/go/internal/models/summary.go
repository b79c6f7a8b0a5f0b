package models

import "time"

// Summary is the incrementally maintained natural-language summary of one entity.
type Summary struct {
	Text            string    `json:"text" bson:"text"`
	ContributingIDs []string  `json:"contributing_ids" bson:"contributing_ids"`
	UpdatedAt       time.Time `json:"updated_at" bson:"updated_at"`
}

// Contains reports whether id has already been merged into the summary.
func (s Summary) Contains(id string) bool {
	for _, c := range s.ContributingIDs {
		if c == id {
			return true
		}
	}
	return false
}

// Clone returns a copy that shares no backing array with s.
func (s Summary) Clone() Summary {
	out := s
	out.ContributingIDs = make([]string, len(s.ContributingIDs))
	copy(out.ContributingIDs, s.ContributingIDs)
	return out
}
