package sync

import (
	"sort"
	"sync"
)

// IDSet is the working set of destination item ids not yet seen in the
// current source fetch. Whatever remains after a batch is deleted.
type IDSet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

// NewIDSet snapshots ids.
func NewIDSet(ids []string) *IDSet {
	s := &IDSet{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
	return s
}

// MarkSeen removes id and reports whether it was present.
func (s *IDSet) MarkSeen(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	delete(s.ids, id)
	return ok
}

func (s *IDSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// Remaining returns the unseen ids, sorted.
func (s *IDSet) Remaining() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
