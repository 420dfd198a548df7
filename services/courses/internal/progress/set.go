package progress

import (
	"encoding/json"
)

// WatchedSet is an insertion-ordered set of video ids. It encodes as a JSON
// array of strings in insertion order, so a save/load round trip is lossless.
// The zero value is an empty set ready to use.
type WatchedSet struct {
	ids   []string
	index map[string]struct{}
}

func NewWatchedSet(ids ...string) WatchedSet {
	var s WatchedSet
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Add inserts id and reports whether the set grew.
func (s *WatchedSet) Add(id string) bool {
	if s.Has(id) {
		return false
	}
	if s.index == nil {
		s.index = make(map[string]struct{})
	}
	s.index[id] = struct{}{}
	s.ids = append(s.ids, id)
	return true
}

func (s WatchedSet) Has(id string) bool {
	_, ok := s.index[id]
	return ok
}

func (s WatchedSet) Len() int { return len(s.ids) }

// IDs returns a copy of the members in insertion order.
func (s WatchedSet) IDs() []string {
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	return out
}

// Clone returns an independent copy.
func (s WatchedSet) Clone() WatchedSet {
	return NewWatchedSet(s.ids...)
}

// Equal compares membership; order is ignored.
func (s WatchedSet) Equal(o WatchedSet) bool {
	if s.Len() != o.Len() {
		return false
	}
	for _, id := range s.ids {
		if !o.Has(id) {
			return false
		}
	}
	return true
}

func (s WatchedSet) MarshalJSON() ([]byte, error) {
	if s.ids == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.ids)
}

// UnmarshalJSON accepts an array of strings; duplicates collapse.
func (s *WatchedSet) UnmarshalJSON(b []byte) error {
	var ids []string
	if err := json.Unmarshal(b, &ids); err != nil {
		return err
	}
	*s = NewWatchedSet(ids...)
	return nil
}
