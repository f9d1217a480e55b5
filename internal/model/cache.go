package model

import "time"

// CachedHTML is a content-addressable cache entry for a fetched page.
// Immutable once created; unique per (job_id, normalized_url, content_hash)
// so re-fetching identical bytes reuses the same entry.
type CachedHTML struct {
	ID            string    `json:"id"`
	JobID         string    `json:"job_id"`
	NormalizedURL string    `json:"normalized_url"`
	ContentHash   string    `json:"content_hash"`
	RawHTML       string    `json:"raw_html"`
	CleanedHTML   string    `json:"cleaned_html"`
	FetchedAt     time.Time `json:"fetched_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Valid reports whether the entry is still inside its validity window.
func (c *CachedHTML) Valid(now time.Time) bool {
	return now.Before(c.ExpiresAt)
}
