// Package extract defines the extraction contract shared by the cascade
// stages, plus salary parsing and validation applied to every stage's
// output.
package extract

import (
	"context"

	"github.com/sells-group/jobintel/internal/model"
)

// Input carries everything a stage may need for one posting.
type Input struct {
	JobID       string
	URL         string
	RawHTML     string
	CleanedText string
}

// Result is the outcome of one extraction stage.
type Result struct {
	Fields     model.ExtractedFields
	Confidence float64
	Method     model.ExtractionMethod
}

// Extractor is one stage of the extraction cascade. Supports is a cheap
// pre-check; stages that cannot serve the posting are skipped without an
// attempt. Extract returns a nil Result only alongside an error.
type Extractor interface {
	Name() string
	Supports(in Input) bool
	Extract(ctx context.Context, in Input) (*Result, error)
}
