// Package clean reduces fetched job posting HTML to extraction-ready text.
package clean

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/jobintel/internal/config"
)

// boilerplateSelectors are removed outright before content detection.
// Job boards bury the posting under navigation, cookie banners, social
// widgets, and related-jobs rails.
var boilerplateSelectors = []string{
	"script", "style", "noscript", "template", "iframe", "svg", "canvas",
	"nav", "header", "footer", "aside", "form", "button",
	`[role="navigation"]`, `[role="banner"]`, `[role="contentinfo"]`,
	`[class*="cookie"]`, `[id*="cookie"]`,
	`[class*="social"]`, `[class*="share"]`,
	`[class*="advert"]`, `[id*="advert"]`, `[class*="sponsor"]`,
	`[class*="related-jobs"]`, `[class*="similar-jobs"]`,
	`[aria-hidden="true"]`, "[hidden]",
	`[style*="display:none"]`, `[style*="display: none"]`,
	`[style*="visibility:hidden"]`, `[style*="visibility: hidden"]`,
}

// contentSelectors locate the posting body, tried in order from most to
// least specific. SPA mount points come late: they match almost anything.
var contentSelectors = []string{
	`[itemprop="description"]`,
	".job-description", ".job-details", ".jobDescription",
	".posting", ".posting-page", ".opening",
	"main", "article", `[role="main"]`,
	"#content", ".content", ".description",
	"#root", "#app", "#__next",
}

// Cleaner strips boilerplate and truncates to the configured token budget.
type Cleaner struct {
	cfg config.CleanConfig
}

// New creates a Cleaner.
func New(cfg config.CleanConfig) *Cleaner {
	return &Cleaner{cfg: cfg}
}

// Clean parses rawHTML, drops boilerplate, isolates the main content, and
// returns normalized text within the character budget.
func (c *Cleaner) Clean(rawHTML string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return "", eris.Wrap(err, "clean: parse html")
	}

	doc.Find(strings.Join(boilerplateSelectors, ", ")).Remove()

	text := c.mainContent(doc)
	text = normalizeWhitespace(text)
	return c.truncate(text), nil
}

// mainContent walks the selector cascade and returns the first candidate
// with enough text to plausibly be the posting. Falls back to the largest
// div, then the whole body.
func (c *Cleaner) mainContent(doc *goquery.Document) string {
	minLen := c.cfg.MinContentLen
	if minLen <= 0 {
		minLen = 200
	}

	for _, sel := range contentSelectors {
		found := ""
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if t := strings.TrimSpace(s.Text()); len(t) >= minLen {
				found = t
				return false
			}
			return true
		})
		if found != "" {
			return found
		}
	}

	// Largest div by text length.
	best := ""
	doc.Find("div").Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); len(t) > len(best) {
			best = t
		}
	})
	if len(best) >= minLen {
		return best
	}

	zap.L().Debug("content cascade fell through to body")
	return strings.TrimSpace(doc.Find("body").Text())
}

var (
	spaceRun   = regexp.MustCompile(`[ \t\r\f]+`)
	newlineRun = regexp.MustCompile(`\n{3,}`)
	blankLine  = regexp.MustCompile(`\n[ \t]+\n`)
)

func normalizeWhitespace(s string) string {
	s = spaceRun.ReplaceAllString(s, " ")
	s = blankLine.ReplaceAllString(s, "\n\n")
	s = newlineRun.ReplaceAllString(s, "\n\n")

	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// truncate cuts text to the character budget derived from the token
// budget, backing the cut point off through successive 10% windows until
// a sentence boundary turns up. FloorLen bounds how far back the search
// may reach; with no boundary above the floor the cut is hard at the
// budget.
func (c *Cleaner) truncate(text string) string {
	budget := int(float64(c.cfg.TokenBudget) * c.cfg.CharsPerToken)
	if budget <= 0 || len(text) <= budget {
		return text
	}

	floor := c.cfg.FloorLen
	if floor < 0 {
		floor = 0
	}
	step := budget / 10
	if step == 0 {
		step = 1
	}

	for hi := budget; hi > floor; {
		lo := hi - step
		if lo < floor {
			lo = floor
		}
		for i := hi - 1; i >= lo; i-- {
			switch text[i] {
			case '.', '!', '?', '\n':
				return strings.TrimSpace(text[:i+1])
			}
		}
		hi = lo
	}
	return strings.TrimSpace(text[:budget])
}
