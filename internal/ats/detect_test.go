package ats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		vendor    Vendor
		slug      string
		postingID string
		supported bool
	}{
		{
			name:      "greenhouse board",
			url:       "https://boards.greenhouse.io/acme/jobs/4567890",
			vendor:    VendorGreenhouse,
			slug:      "acme",
			postingID: "4567890",
			supported: true,
		},
		{
			name:      "greenhouse new domain",
			url:       "https://job-boards.greenhouse.io/acme/jobs/4567890",
			vendor:    VendorGreenhouse,
			slug:      "acme",
			postingID: "4567890",
			supported: true,
		},
		{
			name:      "greenhouse eu",
			url:       "https://boards.eu.greenhouse.io/acme/jobs/42",
			vendor:    VendorGreenhouse,
			slug:      "acme",
			postingID: "42",
			supported: true,
		},
		{
			name:   "greenhouse board index is not a posting",
			url:    "https://boards.greenhouse.io/acme",
			vendor: VendorGreenhouse,
		},
		{
			name:      "lever posting",
			url:       "https://jobs.lever.co/acme/f9d5e828-1b3c-4a5e-9c3d-111122223333",
			vendor:    VendorLever,
			slug:      "acme",
			postingID: "f9d5e828-1b3c-4a5e-9c3d-111122223333",
			supported: true,
		},
		{
			name:   "lever board index is not a posting",
			url:    "https://jobs.lever.co/acme",
			vendor: VendorLever,
		},
		{
			name:   "workday detected but unsupported",
			url:    "https://acme.myworkdayjobs.com/en-US/careers/job/Engineer_R-12345",
			vendor: VendorWorkday,
			slug:   "acme",
		},
		{
			name:   "smartrecruiters detected but unsupported",
			url:    "https://jobs.smartrecruiters.com/AcmeCorp/743999-engineer",
			vendor: VendorSmartRecruiter,
			slug:   "AcmeCorp",
		},
		{
			name:   "plain careers page",
			url:    "https://acme.com/careers/senior-engineer",
			vendor: VendorUnknown,
		},
		{
			name:   "garbage",
			url:    "://not-a-url",
			vendor: VendorUnknown,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			det := Detect(tt.url)
			assert.Equal(t, tt.vendor, det.Vendor)
			assert.Equal(t, tt.slug, det.Slug)
			assert.Equal(t, tt.postingID, det.PostingID)
			assert.Equal(t, tt.supported, det.Supported)
		})
	}
}
