// Package urlnorm canonicalizes posting URLs for cache and dedup keys.
package urlnorm

import (
	"net/url"
	"sort"
	"strings"
)

// trackingParams is the deny-list of query parameters stripped during
// normalization. Everything else is retained: vendor job-identifier
// parameters (gh_jid, currentJobId, ...) must survive or distinct postings
// collapse into one cache entry.
var trackingParams = map[string]bool{
	"gclid":            true,
	"fbclid":           true,
	"msclkid":          true,
	"mc_cid":           true,
	"mc_eid":           true,
	"mkt_tok":          true,
	"igshid":           true,
	"ref":              true,
	"referrer":         true,
	"source":           true,
	"_hsenc":           true,
	"_hsmi":            true,
	"vero_id":          true,
	"yclid":            true,
	"trk":              true,
	"trackingid":       true,
	"refid":            true,
	"original_referer": true,
}

// Normalize returns the canonical form of a posting URL: lowercased
// scheme/host, no fragment, tracking parameters removed, remaining query
// sorted deterministically. Malformed input is returned unmodified.
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	q := u.Query()
	for k := range q {
		lk := strings.ToLower(k)
		if strings.HasPrefix(lk, "utm_") || trackingParams[lk] {
			q.Del(k)
		}
	}
	for k := range q {
		vals := q[k]
		sort.Strings(vals)
		q[k] = vals
	}
	u.RawQuery = q.Encode()

	// Trailing slash on a bare path is not identifying.
	if u.Path == "/" {
		u.Path = ""
	}
	return u.String()
}
