package crawl_test

import (
	"testing"
	"time"

	"github.com/fwojciec/sitediff"
	"github.com/fwojciec/sitediff/crawl"
	"github.com/stretchr/testify/assert"
)

func stateWith(ids ...sitediff.ItemID) *sitediff.CrawlState {
	s := sitediff.NewCrawlState("cadical")
	base := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
	for i, id := range ids {
		s.Seen[id] = base.Add(time.Duration(i) * time.Minute)
	}
	return s
}

func TestComputeDiff(t *testing.T) {
	t.Parallel()

	t.Run("empty state makes every id new in order", func(t *testing.T) {
		t.Parallel()

		d := crawl.ComputeDiff([]sitediff.ItemID{"44928", "44929", "44930"}, sitediff.NewCrawlState("cadical"), true)

		assert.Equal(t, []sitediff.ItemID{"44928", "44929", "44930"}, d.New)
		assert.Empty(t, d.Seen)
		assert.Empty(t, d.Gone)
		assert.True(t, d.Complete)
	})

	t.Run("partitions against state", func(t *testing.T) {
		t.Parallel()

		state := stateWith("44928", "40000")
		d := crawl.ComputeDiff([]sitediff.ItemID{"44930", "44928", "44929"}, state, true)

		assert.Equal(t, []sitediff.ItemID{"44930", "44929"}, d.New)
		assert.Equal(t, []sitediff.ItemID{"44928"}, d.Seen)
		assert.Equal(t, []sitediff.ItemID{"40000"}, d.Gone)
	})

	t.Run("gone is not computed for incomplete listings", func(t *testing.T) {
		t.Parallel()

		d := crawl.ComputeDiff([]sitediff.ItemID{"44928"}, stateWith("40000"), false)

		assert.Equal(t, []sitediff.ItemID{"44928"}, d.New)
		assert.Nil(t, d.Gone)
		assert.False(t, d.Complete)
	})

	t.Run("duplicates are reported once", func(t *testing.T) {
		t.Parallel()

		d := crawl.ComputeDiff([]sitediff.ItemID{"1", "2", "1", "2"}, nil, true)

		assert.Equal(t, []sitediff.ItemID{"1", "2"}, d.New)
	})

	t.Run("does not modify state", func(t *testing.T) {
		t.Parallel()

		state := stateWith("1")
		_ = crawl.ComputeDiff([]sitediff.ItemID{"2", "3"}, state, true)

		assert.Equal(t, 1, state.Len())
	})
}

func TestSeenIndex(t *testing.T) {
	t.Parallel()

	state := stateWith("a", "b", "c")
	idx := crawl.NewSeenIndex(state)

	for _, id := range []sitediff.ItemID{"a", "b", "c"} {
		assert.True(t, idx.Has(id), id)
	}
	assert.False(t, idx.Has("d"))
	assert.False(t, crawl.NewSeenIndex(nil).Has("a"))
}

func TestIDSet(t *testing.T) {
	t.Parallel()

	var s crawl.IDSet

	assert.Equal(t, 2, s.Add("44928", "44929"))
	assert.Equal(t, 1, s.Add("44929", "44930"))
	assert.Equal(t, 0, s.Add("44930"))

	assert.Equal(t, []sitediff.ItemID{"44928", "44929", "44930"}, s.IDs())
	assert.Equal(t, 3, s.Len())
	assert.True(t, s.Has("44929"))
	assert.False(t, s.Has("1"))
}
