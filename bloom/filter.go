// Package bloom provides probabilistic membership screening for item
// identifiers using Bloom filters.
package bloom

import (
	"github.com/bits-and-blooms/bloom/v3"
	"github.com/fwojciec/sitediff"
)

// Filter wraps a Bloom filter keyed by item identifier.
type Filter struct {
	f *bloom.BloomFilter
}

// NewFilter creates a new Bloom filter sized for n expected identifiers
// with the given false positive rate.
func NewFilter(n uint, fpRate float64) *Filter {
	if n == 0 {
		n = 1
	}
	return &Filter{
		f: bloom.NewWithEstimates(n, fpRate),
	}
}

// Add adds an identifier to the filter.
func (f *Filter) Add(id sitediff.ItemID) {
	f.f.AddString(string(id))
}

// Test returns true if the identifier might be in the filter.
// False positives are possible; false negatives are not.
func (f *Filter) Test(id sitediff.ItemID) bool {
	return f.f.TestString(string(id))
}

// EstimatedCount returns the approximate number of identifiers in the filter.
func (f *Filter) EstimatedCount() uint {
	return uint(f.f.ApproximatedSize())
}
