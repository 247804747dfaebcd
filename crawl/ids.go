package crawl

import "github.com/fwojciec/sitediff"

// IDSet is an insertion-ordered set of identifiers used to union the
// identifiers of all list pages in one run.
type IDSet struct {
	seen map[sitediff.ItemID]struct{}
	list []sitediff.ItemID
}

// Add inserts ids not already present and returns how many were new.
func (s *IDSet) Add(ids ...sitediff.ItemID) int {
	if s.seen == nil {
		s.seen = make(map[sitediff.ItemID]struct{})
	}
	var added int
	for _, id := range ids {
		if _, ok := s.seen[id]; ok {
			continue
		}
		s.seen[id] = struct{}{}
		s.list = append(s.list, id)
		added++
	}
	return added
}

// Has reports whether id is in the set.
func (s *IDSet) Has(id sitediff.ItemID) bool {
	_, ok := s.seen[id]
	return ok
}

// IDs returns the identifiers in first-seen order.
func (s *IDSet) IDs() []sitediff.ItemID {
	return s.list
}

// Len returns the number of identifiers.
func (s *IDSet) Len() int {
	return len(s.list)
}
