package sitediff

// ListPage is the transient content of one list page.
type ListPage struct {
	Index   int
	URL     string
	Content string

	// IDs holds the identifiers extracted from Content, in first-seen order.
	IDs []ItemID

	// ExtractErr is set when the identifier rule could not be applied.
	// The page then counts as empty.
	ExtractErr error
}

// IDExtractor pulls item identifiers out of list-page content.
type IDExtractor interface {
	// Extract returns the unique identifiers found in content, in first-seen
	// order. Malformed markup yields zero identifiers, not an error; only an
	// unusable rule returns an EEXTRACT error.
	Extract(content string, rule IDRule) ([]ItemID, error)
}

// ContentMatcher decides whether a list page still carries listing content.
type ContentMatcher interface {
	// HasContent reports whether content satisfies the pagination's
	// content selector and pattern. With neither configured it returns true.
	HasContent(content string, p Pagination) (bool, error)
}
