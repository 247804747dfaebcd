//go:build integration

package rod_test

import (
	"testing"

	"github.com/fwojciec/sitediff/rod"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrowserManager_RecyclesBrowserAfterMaxPages(t *testing.T) {
	t.Parallel()

	manager, err := rod.NewBrowserManager(rod.WithMaxPages(3))
	require.NoError(t, err)
	defer manager.Close()

	first, release, err := manager.Acquire()
	require.NoError(t, err)
	release()
	for range 2 {
		b, release, err := manager.Acquire()
		require.NoError(t, err)
		assert.Same(t, first, b)
		release()
	}

	second, release, err := manager.Acquire()
	require.NoError(t, err)
	defer release()
	assert.NotSame(t, first, second)
}

func TestBrowserManager_KeepsRetiredBrowserUntilReleased(t *testing.T) {
	t.Parallel()

	manager, err := rod.NewBrowserManager(rod.WithMaxPages(1))
	require.NoError(t, err)
	defer manager.Close()

	first, releaseFirst, err := manager.Acquire()
	require.NoError(t, err)

	_, releaseSecond, err := manager.Acquire()
	require.NoError(t, err)
	defer releaseSecond()

	// The retired browser still answers while its page is in flight.
	_, err = first.Version()
	require.NoError(t, err)

	releaseFirst()
	releaseFirst()
}

func TestBrowserManager_AcquireAfterClose(t *testing.T) {
	t.Parallel()

	manager, err := rod.NewBrowserManager()
	require.NoError(t, err)
	require.NoError(t, manager.Close())
	require.NoError(t, manager.Close())

	_, _, err = manager.Acquire()
	require.Error(t, err)
}
