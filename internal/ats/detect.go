// Package ats recognizes applicant tracking system URLs and fetches
// postings from vendor APIs where a public one exists.
package ats

import (
	"net/url"
	"strings"
)

// Vendor identifies an applicant tracking system.
type Vendor string

const (
	VendorGreenhouse     Vendor = "greenhouse"
	VendorLever          Vendor = "lever"
	VendorWorkday        Vendor = "workday"
	VendorSmartRecruiter Vendor = "smartrecruiters"
	VendorUnknown        Vendor = "unknown"
)

// Detection is the result of inspecting a posting URL. Supported means a
// vendor API client exists; Workday and SmartRecruiters are recognized for
// heuristic profiles but have no public posting API to call.
type Detection struct {
	Vendor    Vendor
	Slug      string
	PostingID string
	Supported bool
}

// Detect classifies a posting URL by host and path shape.
func Detect(rawURL string) Detection {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return Detection{Vendor: VendorUnknown}
	}
	host := strings.ToLower(u.Hostname())
	parts := splitPath(u.Path)

	switch {
	case host == "boards.greenhouse.io" || host == "job-boards.greenhouse.io" ||
		host == "boards.eu.greenhouse.io" || host == "job-boards.eu.greenhouse.io":
		// /{slug}/jobs/{id}
		if len(parts) >= 3 && parts[1] == "jobs" {
			return Detection{Vendor: VendorGreenhouse, Slug: parts[0], PostingID: parts[2], Supported: true}
		}
		return Detection{Vendor: VendorGreenhouse}

	case host == "jobs.lever.co" || host == "jobs.eu.lever.co":
		// /{slug}/{posting-uuid}
		if len(parts) >= 2 {
			return Detection{Vendor: VendorLever, Slug: parts[0], PostingID: parts[1], Supported: true}
		}
		return Detection{Vendor: VendorLever}

	case strings.HasSuffix(host, ".myworkdayjobs.com"):
		slug := strings.TrimSuffix(host, ".myworkdayjobs.com")
		return Detection{Vendor: VendorWorkday, Slug: slug}

	case host == "jobs.smartrecruiters.com" || host == "careers.smartrecruiters.com":
		var slug string
		if len(parts) >= 1 {
			slug = parts[0]
		}
		return Detection{Vendor: VendorSmartRecruiter, Slug: slug}
	}

	return Detection{Vendor: VendorUnknown}
}

func splitPath(p string) []string {
	var parts []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return parts
}
