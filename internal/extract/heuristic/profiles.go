package heuristic

import "github.com/sells-group/jobintel/internal/ats"

// Profile is the selector set for one ATS page layout. Vendor selectors
// are tried before the generic ones; a field with no hit is simply not
// produced and the AI stage remains the better source for it.
type Profile struct {
	Title    []string
	Company  []string
	Location []string
}

// genericProfile covers unbranded careers pages.
var genericProfile = Profile{
	Title: []string{
		`h1[class*="job"]`, `h1[class*="title"]`, ".job-title", ".jobTitle",
		`[itemprop="title"]`, "h1",
	},
	Company: []string{
		`[itemprop="hiringOrganization"]`, ".company-name", ".companyName",
		`[class*="company"]`,
	},
	Location: []string{
		`[itemprop="jobLocation"]`, ".job-location", ".location",
		`[class*="location"]`,
	},
}

// vendorProfiles capture the markup each ATS actually renders.
var vendorProfiles = map[ats.Vendor]Profile{
	ats.VendorGreenhouse: {
		Title:    []string{".app-title", "h1.section-header"},
		Company:  []string{".company-name"},
		Location: []string{".location", ".job__location"},
	},
	ats.VendorLever: {
		Title:    []string{".posting-headline h2"},
		Location: []string{".posting-categories .location", ".posting-category.location"},
	},
	ats.VendorWorkday: {
		Title:    []string{`[data-automation-id="jobPostingHeader"]`},
		Location: []string{`[data-automation-id="locations"]`, `[data-automation-id="location"]`},
	},
	ats.VendorSmartRecruiter: {
		Title:    []string{"h1.job-title", `[itemprop="title"]`},
		Company:  []string{`[itemprop="hiringOrganization"]`},
		Location: []string{`[itemprop="jobLocation"]`, "spl-job-location"},
	},
}

// profileFor merges the vendor profile (if any) ahead of the generic one.
func profileFor(vendor ats.Vendor) Profile {
	vp, ok := vendorProfiles[vendor]
	if !ok {
		return genericProfile
	}
	return Profile{
		Title:    append(append([]string{}, vp.Title...), genericProfile.Title...),
		Company:  append(append([]string{}, vp.Company...), genericProfile.Company...),
		Location: append(append([]string{}, vp.Location...), genericProfile.Location...),
	}
}
