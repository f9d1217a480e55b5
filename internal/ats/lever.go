package ats

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/jobintel/internal/extract"
	"github.com/sells-group/jobintel/internal/model"
	"github.com/sells-group/jobintel/internal/resilience"
)

const leverBaseURL = "https://api.lever.co/v0/postings"

// LeverClient reads single postings from the public postings API.
type LeverClient struct {
	baseURL string
	client  *http.Client
	backoff resilience.BackoffConfig
}

// NewLeverClient creates a client against the production postings API.
func NewLeverClient(client *http.Client) *LeverClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &LeverClient{
		baseURL: leverBaseURL,
		client:  client,
		backoff: resilience.DefaultBackoff(),
	}
}

type leverPosting struct {
	ID               string `json:"id"`
	Text             string `json:"text"`
	DescriptionPlain string `json:"descriptionPlain"`
	WorkplaceType    string `json:"workplaceType"`
	Categories       struct {
		Team         string   `json:"team"`
		Location     string   `json:"location"`
		AllLocations []string `json:"allLocations"`
	} `json:"categories"`
	SalaryRange *struct {
		Min      float64 `json:"min"`
		Max      float64 `json:"max"`
		Currency string  `json:"currency"`
		Interval string  `json:"interval"`
	} `json:"salaryRange"`
	Lists []struct {
		Text    string `json:"text"`
		Content string `json:"content"`
	} `json:"lists"`
}

// FetchPosting retrieves one posting and maps it to extracted fields.
func (c *LeverClient) FetchPosting(ctx context.Context, slug, postingID string) (model.ExtractedFields, error) {
	var fields model.ExtractedFields

	u := fmt.Sprintf("%s/%s/%s?mode=json", c.baseURL, slug, postingID)
	var p leverPosting
	if err := getJSON(ctx, c.client, c.backoff, u, &p); err != nil {
		return fields, eris.Wrapf(err, "lever: posting %s/%s", slug, postingID)
	}

	fields.Title = strPtr(p.Text)
	fields.CompanyName = strPtr(companyFromSlug(slug))
	fields.Description = strPtr(strings.TrimSpace(p.DescriptionPlain))

	location := p.Categories.Location
	if len(p.Categories.AllLocations) > 0 {
		location = strings.Join(p.Categories.AllLocations, ", ")
	}
	fields.Location = strPtr(location)

	switch strings.ToLower(p.WorkplaceType) {
	case "remote":
		fields.RemoteType = remotePtr(model.RemoteTypeRemote)
	case "hybrid":
		fields.RemoteType = remotePtr(model.RemoteTypeHybrid)
	case "on-site", "onsite":
		fields.RemoteType = remotePtr(model.RemoteTypeOnsite)
	default:
		fields.RemoteType = remoteTypeFromLocation(location)
	}

	// Lever's section lists map naturally onto posting sections.
	if len(p.Lists) > 0 {
		fields.Sections = make(map[string]string, len(p.Lists))
		for _, l := range p.Lists {
			name := strings.ToLower(strings.TrimSpace(l.Text))
			if name == "" {
				continue
			}
			fields.Sections[name] = contentToText(l.Content)
		}
	}

	if p.SalaryRange != nil && p.SalaryRange.Max > 0 {
		period := "year"
		if strings.EqualFold(p.SalaryRange.Interval, "per-hour-wage") ||
			strings.EqualFold(p.SalaryRange.Interval, "hourly") {
			period = "hour"
		}
		s := &model.Salary{
			Min:      p.SalaryRange.Min,
			Max:      p.SalaryRange.Max,
			Currency: strings.ToUpper(p.SalaryRange.Currency),
			Period:   period,
		}
		if extract.ValidateSalary(s) == nil {
			fields.Salary = s
		}
	}
	if fields.Salary == nil && fields.Description != nil {
		fields.Salary = extract.ParseSalary(*fields.Description)
	}

	return fields, nil
}

// companyFromSlug turns "acme-corp" into "Acme Corp". The postings API
// does not expose a display name.
func companyFromSlug(slug string) string {
	words := strings.FieldsFunc(slug, func(r rune) bool { return r == '-' || r == '_' })
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
