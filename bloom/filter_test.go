package bloom_test

import (
	"strconv"
	"testing"

	"github.com/fwojciec/sitediff"
	"github.com/fwojciec/sitediff/bloom"
	"github.com/stretchr/testify/assert"
)

func TestFilter_AddAndTest(t *testing.T) {
	t.Parallel()

	f := bloom.NewFilter(1000, 0.01)

	assert.False(t, f.Test("44928"))

	f.Add("44928")

	assert.True(t, f.Test("44928"))
	assert.False(t, f.Test("44929"))
}

func TestFilter_ZeroCapacity(t *testing.T) {
	t.Parallel()

	f := bloom.NewFilter(0, 0.01)
	f.Add("a")

	assert.True(t, f.Test("a"))
}

func TestFilter_EstimatedCount(t *testing.T) {
	t.Parallel()

	f := bloom.NewFilter(1000, 0.01)
	assert.Equal(t, uint(0), f.EstimatedCount())

	for _, id := range []sitediff.ItemID{"44928", "44929", "44930", "44930"} {
		f.Add(id)
	}

	count := f.EstimatedCount()
	assert.True(t, count >= 2 && count <= 4, "expected count near 3, got %d", count)
}

func TestFilter_NoFalseNegatives(t *testing.T) {
	t.Parallel()

	const n = 5000
	f := bloom.NewFilter(n, 0.01)
	for i := 0; i < n; i++ {
		f.Add(sitediff.ItemID(strconv.Itoa(i)))
	}

	for i := 0; i < n; i++ {
		if !f.Test(sitediff.ItemID(strconv.Itoa(i))) {
			t.Fatalf("identifier %d reported absent after Add", i)
		}
	}

	var falsePositives int
	for i := n; i < 2*n; i++ {
		if f.Test(sitediff.ItemID(strconv.Itoa(i))) {
			falsePositives++
		}
	}
	assert.Less(t, float64(falsePositives)/n, 0.03)
}
