package http

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/fwojciec/sitediff"
	"github.com/temoto/robotstxt"
)

// Ensure RobotsChecker implements sitediff.RobotsChecker at compile time.
var _ sitediff.RobotsChecker = (*RobotsChecker)(nil)

// RobotsChecker answers robots.txt queries, caching the parsed file per host.
// It is safe for concurrent use.
type RobotsChecker struct {
	client *http.Client

	mu    sync.Mutex
	hosts map[string]*robotstxt.RobotsData
}

// NewRobotsChecker creates a RobotsChecker. If client is nil,
// http.DefaultClient is used.
func NewRobotsChecker(client *http.Client) *RobotsChecker {
	if client == nil {
		client = http.DefaultClient
	}
	return &RobotsChecker{
		client: client,
		hosts:  make(map[string]*robotstxt.RobotsData),
	}
}

// Allowed reports whether userAgent may fetch rawURL.
// A missing robots.txt (4xx) allows everything; a 5xx disallows everything,
// following robotstxt.FromStatusAndBytes.
func (c *RobotsChecker) Allowed(ctx context.Context, rawURL string, userAgent string) (bool, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false, sitediff.Errorf(sitediff.EINVALID, "invalid URL %q: %v", rawURL, err)
	}

	data, err := c.robots(ctx, u)
	if err != nil {
		return false, err
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return data.TestAgent(path, userAgent), nil
}

func (c *RobotsChecker) robots(ctx context.Context, u *url.URL) (*robotstxt.RobotsData, error) {
	key := u.Scheme + "://" + u.Host

	c.mu.Lock()
	data, ok := c.hosts[key]
	c.mu.Unlock()
	if ok {
		return data, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, key+"/robots.txt", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, sitediff.NewTransportError(req.URL.String(), unwrapURLError(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512<<10))
	if err != nil {
		return nil, sitediff.NewTransportError(req.URL.String(), err)
	}

	data, err = robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, sitediff.Errorf(sitediff.EINVALID, "parsing %s/robots.txt: %v", key, err)
	}

	c.mu.Lock()
	c.hosts[key] = data
	c.mu.Unlock()

	return data, nil
}
