package ats

import (
	"context"
	"net/http"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/jobintel/internal/extract"
	"github.com/sells-group/jobintel/internal/model"
)

// structuredConfidence applies to any posting served by a vendor API:
// the response is structured at the source, not inferred.
const structuredConfidence = 0.95

// StructuredExtractor is the first cascade stage. It serves only URLs
// whose ATS exposes a public posting API.
type StructuredExtractor struct {
	greenhouse *GreenhouseClient
	lever      *LeverClient
}

// NewStructuredExtractor creates the stage with vendor clients sharing
// one HTTP client.
func NewStructuredExtractor(client *http.Client) *StructuredExtractor {
	return &StructuredExtractor{
		greenhouse: NewGreenhouseClient(client),
		lever:      NewLeverClient(client),
	}
}

func (e *StructuredExtractor) Name() string { return "structured_api" }

// Supports reports whether a vendor API exists for the posting URL.
func (e *StructuredExtractor) Supports(in extract.Input) bool {
	return Detect(in.URL).Supported
}

// Extract calls the vendor API identified by the URL.
func (e *StructuredExtractor) Extract(ctx context.Context, in extract.Input) (*extract.Result, error) {
	det := Detect(in.URL)
	if !det.Supported {
		return nil, eris.Errorf("ats: no posting api for %s", in.URL)
	}

	var (
		fields model.ExtractedFields
		err    error
	)
	switch det.Vendor {
	case VendorGreenhouse:
		fields, err = e.greenhouse.FetchPosting(ctx, det.Slug, det.PostingID)
	case VendorLever:
		fields, err = e.lever.FetchPosting(ctx, det.Slug, det.PostingID)
	default:
		return nil, eris.Errorf("ats: unhandled vendor %s", det.Vendor)
	}
	if err != nil {
		return nil, err
	}
	if fields.IsEmpty() {
		return nil, eris.Errorf("ats: %s returned an empty posting", det.Vendor)
	}

	zap.L().Debug("structured api extraction",
		zap.String("vendor", string(det.Vendor)),
		zap.String("slug", det.Slug),
		zap.String("posting_id", det.PostingID),
		zap.Int("fields", fields.CountProduced()),
	)

	return &extract.Result{
		Fields:     fields,
		Confidence: structuredConfidence,
		Method:     model.MethodStructuredAPI,
	}, nil
}
