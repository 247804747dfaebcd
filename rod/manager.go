package rod

import (
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// DefaultMaxPages is the default number of pages before browser recycling.
const DefaultMaxPages = 75

// BrowserManager hands out a shared browser and replaces it after a number
// of pages, since Chrome's memory baseline keeps growing under load. A
// retired browser is closed once its last page is done.
//
// BrowserManager is safe for concurrent use.
type BrowserManager struct {
	maxPages  int
	headless  bool
	noSandbox bool

	mu      sync.Mutex
	current *generation
	closed  bool
}

// generation is one launched browser and the pages still using it.
type generation struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	pages    int
	inflight int
	retired  bool
}

// ManagerOption configures a BrowserManager.
type ManagerOption func(*BrowserManager)

// WithMaxPages sets the number of pages before the browser is recycled.
func WithMaxPages(n int) ManagerOption {
	return func(bm *BrowserManager) {
		bm.maxPages = n
	}
}

// WithHeadless toggles headless mode. Defaults to true.
func WithHeadless(headless bool) ManagerOption {
	return func(bm *BrowserManager) {
		bm.headless = headless
	}
}

// WithNoSandbox disables the Chrome sandbox, which containers running as
// root require.
func WithNoSandbox(noSandbox bool) ManagerOption {
	return func(bm *BrowserManager) {
		bm.noSandbox = noSandbox
	}
}

// NewBrowserManager launches a browser.
// Close must be called when the BrowserManager is no longer needed.
func NewBrowserManager(opts ...ManagerOption) (*BrowserManager, error) {
	bm := &BrowserManager{
		maxPages: DefaultMaxPages,
		headless: true,
	}
	for _, opt := range opts {
		opt(bm)
	}
	if bm.maxPages <= 0 {
		bm.maxPages = DefaultMaxPages
	}

	gen, err := bm.launch()
	if err != nil {
		return nil, err
	}
	bm.current = gen
	return bm, nil
}

// Acquire returns the browser to open one page on and a release function
// to call once the page is closed. A browser that reached its page quota is
// replaced before being handed out.
func (bm *BrowserManager) Acquire() (*rod.Browser, func(), error) {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	if bm.closed {
		return nil, nil, fmt.Errorf("browser manager is closed")
	}
	if bm.current.pages >= bm.maxPages {
		bm.recycle()
	}

	gen := bm.current
	gen.pages++
	gen.inflight++

	var once sync.Once
	release := func() {
		once.Do(func() {
			bm.mu.Lock()
			defer bm.mu.Unlock()
			gen.inflight--
			if gen.retired && gen.inflight == 0 {
				gen.close()
			}
		})
	}
	return gen.browser, release, nil
}

// Close releases browser resources. Close is safe to call multiple times.
func (bm *BrowserManager) Close() error {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	if bm.closed {
		return nil
	}
	bm.closed = true
	return bm.current.close()
}

// LauncherPID returns the process ID of the current browser launcher.
func (bm *BrowserManager) LauncherPID() int {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	if bm.current == nil || bm.current.launcher == nil {
		return 0
	}
	return bm.current.launcher.PID()
}

func (bm *BrowserManager) launch() (*generation, error) {
	l := launcher.New().
		Set("disable-background-timer-throttling").
		Set("disable-backgrounding-occluded-windows").
		Set("disable-renderer-backgrounding").
		Set("disable-dev-shm-usage").
		Set("disable-hang-monitor").
		NoSandbox(bm.noSandbox).
		Leakless(true).
		Headless(bm.headless)

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launching browser: %w", err)
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connecting to browser: %w", err)
	}
	return &generation{browser: browser, launcher: l}, nil
}

// recycle swaps in a fresh browser. If the launch fails the old browser
// keeps serving and its quota is reset. Must be called with mu held.
func (bm *BrowserManager) recycle() {
	next, err := bm.launch()
	if err != nil {
		bm.current.pages = 0
		return
	}
	old := bm.current
	old.retired = true
	if old.inflight == 0 {
		_ = old.close()
	}
	bm.current = next
}

func (g *generation) close() error {
	var err error
	if g.browser != nil {
		err = g.browser.Close()
		g.browser = nil
	}
	if g.launcher != nil {
		g.launcher.Kill()
		g.launcher = nil
	}
	return err
}
