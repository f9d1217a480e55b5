// Package heuristic is the floor of the extraction cascade: selector-based
// scraping that always yields something, at honest low confidence.
package heuristic

import (
	"context"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/jobintel/internal/ats"
	"github.com/sells-group/jobintel/internal/extract"
	"github.com/sells-group/jobintel/internal/model"
)

// maxConfidence keeps the heuristic below the acceptance threshold: a
// selector hit is a guess about page structure, never a statement from
// the source. Accepting heuristic output is an explicit operator choice
// via threshold configuration.
const maxConfidence = 0.65

// Extractor scrapes fields out of raw posting HTML.
type Extractor struct{}

// New creates the heuristic stage.
func New() *Extractor { return &Extractor{} }

func (e *Extractor) Name() string { return "html_heuristic" }

// Supports is true whenever there is page content to scrape.
func (e *Extractor) Supports(in extract.Input) bool {
	return in.RawHTML != "" || in.CleanedText != ""
}

// Extract walks the vendor selector profile over the page.
func (e *Extractor) Extract(ctx context.Context, in extract.Input) (*extract.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var fields model.ExtractedFields
	tried := 0

	if in.RawHTML != "" {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(in.RawHTML))
		if err != nil {
			return nil, eris.Wrap(err, "heuristic: parse html")
		}

		profile := profileFor(ats.Detect(in.URL).Vendor)

		if v, n := firstMatch(doc, profile.Title, validTitle); v != "" {
			fields.Title = &v
			tried += n
		} else {
			tried += n
			// og:title often carries "Role - Company".
			if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
				if title := strings.TrimSpace(strings.SplitN(og, " | ", 2)[0]); validTitle(title) {
					fields.Title = &title
				}
			}
		}

		if v, n := firstMatch(doc, profile.Company, validCompany); v != "" {
			fields.CompanyName = &v
			tried += n
		} else {
			tried += n
			if site, ok := doc.Find(`meta[property="og:site_name"]`).Attr("content"); ok {
				if c := strings.TrimSpace(site); validCompany(c) {
					fields.CompanyName = &c
				}
			}
		}

		if v, n := firstMatch(doc, profile.Location, validLocation); v != "" {
			fields.Location = &v
			tried += n
		} else {
			tried += n
		}

		if sections := extractSections(doc); len(sections) > 0 {
			fields.Sections = sections
		}
	}

	text := in.CleanedText
	if text != "" {
		fields.Description = &text
		if rt := detectRemote(text); rt != nil {
			fields.RemoteType = rt
		}
		if s := extract.ParseSalary(text); s != nil {
			fields.Salary = s
		}
	}

	confidence := scoreFields(fields)
	zap.L().Debug("heuristic extraction",
		zap.String("job_id", in.JobID),
		zap.Int("selectors_tried", tried),
		zap.Int("fields", fields.CountProduced()),
		zap.Float64("confidence", confidence),
	)

	return &extract.Result{
		Fields:     fields,
		Confidence: confidence,
		Method:     model.MethodHTML,
	}, nil
}

// firstMatch returns the first selector hit passing the sanity filter,
// plus the number of selectors consulted.
func firstMatch(doc *goquery.Document, selectors []string, valid func(string) bool) (string, int) {
	for i, sel := range selectors {
		found := ""
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if t := squash(s.Text()); valid(t) {
				found = t
				return false
			}
			return true
		})
		if found != "" {
			return found, i + 1
		}
	}
	return "", len(selectors)
}

var sectionHeadings = map[string]string{
	"requirements":     "requirements",
	"qualifications":   "requirements",
	"what you'll need": "requirements",
	"responsibilities": "responsibilities",
	"what you'll do":   "responsibilities",
	"about the role":   "about",
	"about us":         "about",
	"benefits":         "benefits",
	"perks":            "benefits",
	"compensation":     "compensation",
}

// extractSections captures text between recognized headings.
func extractSections(doc *goquery.Document) map[string]string {
	sections := make(map[string]string)
	doc.Find("h2, h3, h4, strong").Each(func(_ int, h *goquery.Selection) {
		heading := strings.ToLower(squash(h.Text()))
		key, ok := sectionHeadings[heading]
		if !ok {
			return
		}

		var parts []string
		for sib := h.Next(); sib.Length() > 0; sib = sib.Next() {
			if goquery.NodeName(sib) == "h2" || goquery.NodeName(sib) == "h3" ||
				goquery.NodeName(sib) == "h4" {
				break
			}
			if t := squash(sib.Text()); t != "" {
				parts = append(parts, t)
			}
		}
		if len(parts) > 0 && sections[key] == "" {
			sections[key] = strings.Join(parts, "\n")
		}
	})
	if len(sections) == 0 {
		return nil
	}
	return sections
}

var remoteRe = regexp.MustCompile(`(?i)\b(fully remote|100% remote|remote[- ]first|work from anywhere)\b`)
var hybridRe = regexp.MustCompile(`(?i)\bhybrid\b`)
var onsiteRe = regexp.MustCompile(`(?i)\b(on-?site only|in[- ]office|no remote)\b`)

func detectRemote(text string) *model.RemoteType {
	rt := model.RemoteTypeUnknown
	switch {
	case hybridRe.MatchString(text):
		rt = model.RemoteTypeHybrid
	case remoteRe.MatchString(text):
		rt = model.RemoteTypeRemote
	case onsiteRe.MatchString(text):
		rt = model.RemoteTypeOnsite
	default:
		return nil
	}
	return &rt
}

// scoreFields weights the fields by how hard they are to fake. Title and
// description come almost free; salary and sections mean the page really
// was understood.
func scoreFields(f model.ExtractedFields) float64 {
	score := 0.0
	if f.Title != nil {
		score += 0.15
	}
	if f.Description != nil {
		score += 0.10
	}
	if f.CompanyName != nil {
		score += 0.10
	}
	if f.Location != nil {
		score += 0.10
	}
	if f.RemoteType != nil {
		score += 0.05
	}
	if f.Salary != nil {
		score += 0.10
	}
	if len(f.Sections) > 0 {
		score += 0.15
	}
	if score > maxConfidence {
		score = maxConfidence
	}
	return score
}

func squash(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func validTitle(s string) bool {
	return len(s) >= 3 && len(s) <= 150 && !strings.Contains(s, "\n")
}

func validCompany(s string) bool {
	return len(s) >= 2 && len(s) <= 80
}

func validLocation(s string) bool {
	if len(s) < 2 || len(s) > 100 {
		return false
	}
	// A full sentence is not a location.
	return strings.Count(s, ".") <= 1
}
