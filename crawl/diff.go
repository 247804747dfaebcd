package crawl

import (
	"github.com/fwojciec/sitediff"
	"github.com/fwojciec/sitediff/bloom"
)

// seenFalsePositiveRate is the Bloom filter error rate for SeenIndex.
const seenFalsePositiveRate = 0.001

// SeenIndex answers membership queries against a crawl state snapshot.
// A Bloom filter screens identifiers first: a negative answer is final and
// a positive one is confirmed against the exact set.
type SeenIndex struct {
	filter *bloom.Filter
	state  *sitediff.CrawlState
}

// NewSeenIndex builds an index over state. A nil state indexes nothing.
func NewSeenIndex(state *sitediff.CrawlState) *SeenIndex {
	f := bloom.NewFilter(uint(state.Len()), seenFalsePositiveRate)
	if state != nil {
		for id := range state.Seen {
			f.Add(id)
		}
	}
	return &SeenIndex{filter: f, state: state}
}

// Has reports whether id is recorded in the indexed state.
func (x *SeenIndex) Has(id sitediff.ItemID) bool {
	if !x.filter.Test(id) {
		return false
	}
	return x.state.Has(id)
}

// ComputeDiff partitions ids against state. New and Seen keep the order of
// ids; duplicates in ids are reported once. Gone lists state identifiers
// missing from ids, in first-seen order, and is only computed when complete
// is true since a partial listing cannot prove absence.
//
// ComputeDiff performs no I/O and does not modify state.
func ComputeDiff(ids []sitediff.ItemID, state *sitediff.CrawlState, complete bool) sitediff.Diff {
	idx := NewSeenIndex(state)
	diff := sitediff.Diff{Complete: complete}

	var current IDSet
	for _, id := range ids {
		if current.Add(id) == 0 {
			continue
		}
		if idx.Has(id) {
			diff.Seen = append(diff.Seen, id)
		} else {
			diff.New = append(diff.New, id)
		}
	}

	if complete {
		for _, id := range state.IDs() {
			if !current.Has(id) {
				diff.Gone = append(diff.Gone, id)
			}
		}
	}

	return diff
}
