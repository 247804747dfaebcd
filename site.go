package sitediff

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Placeholders substituted into list and detail URL templates.
const (
	PagePlaceholder = "{page}"
	IDPlaceholder   = "{id}"
)

// Defaults applied by Site.WithDefaults.
const (
	DefaultDelay       = 1500 * time.Millisecond
	DefaultConcurrency = 2
	DefaultMaxRetries  = 3
	DefaultBackoffBase = time.Second
	DefaultTimeout     = 30 * time.Second
	DefaultStartPage   = 1

	// DefaultMaxFailedPages is how many list pages in a row may fail
	// before the walk gives up on the listing.
	DefaultMaxFailedPages = 3
)

// FetchKind selects the fetch strategy for a site.
type FetchKind string

// Supported fetch strategies.
const (
	FetchHTTP    FetchKind = "http"
	FetchBrowser FetchKind = "browser"
)

// Site is an immutable per-site crawl definition.
type Site struct {
	Name string `yaml:"name"`

	// ListURL is the list page template; {page} is replaced by the page index.
	ListURL string `yaml:"list_url"`

	// StartPage is the first page index. Nil means DefaultStartPage.
	StartPage *int      `yaml:"start_page"`
	Fetch     FetchKind `yaml:"fetch"`

	Pagination Pagination `yaml:"pagination"`
	IDRule     IDRule     `yaml:"ids"`

	// DetailURL is the detail page template; {id} is replaced by the item identifier.
	DetailURL string     `yaml:"detail_url"`
	Parser    ParserSpec `yaml:"parser"`

	// Delay is the minimum spacing between requests to the site. Nil means
	// DefaultDelay; zero disables spacing.
	Delay       *time.Duration `yaml:"delay"`
	Concurrency int            `yaml:"concurrency"`
	MaxRetries  int            `yaml:"max_retries"`
	BackoffBase time.Duration  `yaml:"backoff_base"`
	Timeout     time.Duration  `yaml:"timeout"`

	// MaxItems bounds how many new items are fetched per run. Items past
	// the bound stay uncommitted and are picked up by later runs. Zero
	// means unbounded.
	MaxItems int `yaml:"max_items"`

	Headers       map[string]string `yaml:"headers"`
	UserAgent     string            `yaml:"user_agent"`
	Wait          time.Duration     `yaml:"wait"`
	Scroll        bool              `yaml:"scroll"`
	ScrollCount   int               `yaml:"scroll_count"`
	RespectRobots bool              `yaml:"respect_robots"`
}

// Pagination controls when the list walk stops.
type Pagination struct {
	// MaxPages bounds the number of list pages walked. Zero means unbounded.
	MaxPages int `yaml:"max_pages"`

	// ContentSelector, when set, must match at least one element for a page
	// to count as having content.
	ContentSelector string `yaml:"content_selector"`

	// ContentPattern, when set, must match the raw page for it to count as
	// having content.
	ContentPattern string `yaml:"content_pattern"`

	// MaxFailedPages is how many consecutive list pages may fail after
	// retries before the walk stops. Zero means DefaultMaxFailedPages.
	MaxFailedPages int `yaml:"max_failed_pages"`

	// StopWhenNoNewIDs ends the walk at the first page (after the start page)
	// whose identifiers are all already committed. It suits listings sorted
	// newest first; the diff is then incomplete.
	StopWhenNoNewIDs bool `yaml:"stop_when_no_new_ids"`
}

// IDRule describes how item identifiers are pulled from a list page.
// With only Pattern set, the regexp runs over the raw page. With Selector
// set, each matched element's Attr (or text when Attr is empty) is taken,
// optionally narrowed by Pattern.
type IDRule struct {
	Pattern  string `yaml:"pattern"`
	Selector string `yaml:"selector"`
	Attr     string `yaml:"attr"`
}

// ExtraField is a named CSS selector whose text is added to every record.
type ExtraField struct {
	Name     string `yaml:"name"`
	Selector string `yaml:"selector"`
}

// ParserSpec selects and configures the structural parser for detail pages.
type ParserSpec struct {
	Kind ParserKind `yaml:"kind"`

	// Scope narrows parsing to the elements matched by this CSS selector.
	Scope string `yaml:"scope"`

	Extra []ExtraField `yaml:"extra"`

	// Mapping renames parsed keys (source key -> schema key).
	Mapping map[string]string `yaml:"mapping"`
}

// WithDefaults returns a copy of s with zero-valued tuning fields filled in.
func (s Site) WithDefaults() Site {
	if s.Fetch == "" {
		s.Fetch = FetchHTTP
	}
	if s.StartPage == nil {
		s.StartPage = Ptr(DefaultStartPage)
	}
	if s.Parser.Kind == "" {
		s.Parser.Kind = ParserDefinitionList
	}
	if s.Delay == nil {
		s.Delay = Ptr(DefaultDelay)
	}
	if s.Pagination.MaxFailedPages == 0 {
		s.Pagination.MaxFailedPages = DefaultMaxFailedPages
	}
	if s.Concurrency <= 0 {
		s.Concurrency = DefaultConcurrency
	}
	if s.MaxRetries == 0 {
		s.MaxRetries = DefaultMaxRetries
	}
	if s.BackoffBase == 0 {
		s.BackoffBase = DefaultBackoffBase
	}
	if s.Timeout == 0 {
		s.Timeout = DefaultTimeout
	}
	return s
}

// Validate returns an error if the site definition contains invalid fields.
// All returned errors carry the EINVALID code.
func (s *Site) Validate() error {
	if s.Name == "" {
		return Errorf(EINVALID, "site name required")
	}
	if s.ListURL == "" {
		return Errorf(EINVALID, "site %q: list URL required", s.Name)
	}
	if !strings.Contains(s.ListURL, PagePlaceholder) {
		return Errorf(EINVALID, "site %q: list URL must contain %s", s.Name, PagePlaceholder)
	}
	if _, err := url.Parse(s.ListURL); err != nil {
		return Errorf(EINVALID, "site %q: invalid list URL: %v", s.Name, err)
	}
	if s.DetailURL == "" {
		return Errorf(EINVALID, "site %q: detail URL required", s.Name)
	}
	if !strings.Contains(s.DetailURL, IDPlaceholder) {
		return Errorf(EINVALID, "site %q: detail URL must contain %s", s.Name, IDPlaceholder)
	}
	switch s.Fetch {
	case FetchHTTP, FetchBrowser:
	default:
		return Errorf(EINVALID, "site %q: unknown fetch kind %q", s.Name, s.Fetch)
	}
	if !s.Parser.Kind.Valid() {
		return Errorf(EINVALID, "site %q: unknown parser kind %q", s.Name, s.Parser.Kind)
	}
	if s.IDRule.Pattern == "" && s.IDRule.Selector == "" {
		return Errorf(EINVALID, "site %q: identifier pattern or selector required", s.Name)
	}
	for _, p := range []string{s.IDRule.Pattern, s.Pagination.ContentPattern} {
		if p == "" {
			continue
		}
		if _, err := regexp.Compile(p); err != nil {
			return Errorf(EINVALID, "site %q: invalid pattern %q: %v", s.Name, p, err)
		}
	}
	if s.StartPage != nil && *s.StartPage < 0 {
		return Errorf(EINVALID, "site %q: start page must not be negative", s.Name)
	}
	if s.Pagination.MaxPages < 0 {
		return Errorf(EINVALID, "site %q: max pages must not be negative", s.Name)
	}
	if s.Pagination.MaxFailedPages < 0 || s.MaxItems < 0 {
		return Errorf(EINVALID, "site %q: failed page and item limits must not be negative", s.Name)
	}
	if s.Concurrency < 1 {
		return Errorf(EINVALID, "site %q: concurrency must be at least 1", s.Name)
	}
	if s.MaxRetries < 0 {
		return Errorf(EINVALID, "site %q: max retries must not be negative", s.Name)
	}
	if s.Delay != nil && *s.Delay < 0 {
		return Errorf(EINVALID, "site %q: durations must not be negative", s.Name)
	}
	if s.BackoffBase < 0 || s.Timeout < 0 || s.Wait < 0 {
		return Errorf(EINVALID, "site %q: durations must not be negative", s.Name)
	}
	return nil
}

// FirstPage returns the start page index.
func (s *Site) FirstPage() int {
	if s.StartPage == nil {
		return DefaultStartPage
	}
	return *s.StartPage
}

// Spacing returns the minimum time between requests to the site.
func (s *Site) Spacing() time.Duration {
	if s.Delay == nil {
		return DefaultDelay
	}
	return *s.Delay
}

// Ptr returns a pointer to v. It fills optional Site fields.
func Ptr[T any](v T) *T {
	return &v
}

// PageURL expands the list URL template for the given page index.
func (s *Site) PageURL(page int) string {
	return strings.ReplaceAll(s.ListURL, PagePlaceholder, strconv.Itoa(page))
}

// ItemURL expands the detail URL template for the given identifier.
// The identifier is path-escaped so that opaque identifiers cannot alter
// the URL structure.
func (s *Site) ItemURL(id ItemID) string {
	return strings.ReplaceAll(s.DetailURL, IDPlaceholder, url.PathEscape(string(id)))
}

// FetchOptions derives per-request fetch options from the site definition.
func (s *Site) FetchOptions() FetchOptions {
	return FetchOptions{
		Headers:     s.Headers,
		UserAgent:   s.UserAgent,
		Timeout:     s.Timeout,
		Wait:        s.Wait,
		Scroll:      s.Scroll,
		ScrollCount: s.ScrollCount,
	}
}
