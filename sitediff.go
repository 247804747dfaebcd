// Package sitediff incrementally discovers new records on listing-paginated
// websites. It walks list pages, extracts item identifiers, diffs them against
// previously seen state, fetches and parses detail pages for new items, and
// hands the resulting records to storage and notification collaborators.
//
// This package contains domain types and interfaces following Ben Johnson's
// Standard Package Layout. Implementations live in subdirectories named
// after their primary dependency (e.g., sqlite/, rod/, goquery/).
package sitediff
