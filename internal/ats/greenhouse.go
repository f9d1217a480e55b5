package ats

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/jobintel/internal/extract"
	"github.com/sells-group/jobintel/internal/model"
	"github.com/sells-group/jobintel/internal/resilience"
)

const greenhouseBaseURL = "https://boards-api.greenhouse.io/v1/boards"

// GreenhouseClient reads single postings from the public boards API.
type GreenhouseClient struct {
	baseURL string
	client  *http.Client
	backoff resilience.BackoffConfig
}

// NewGreenhouseClient creates a client against the production boards API.
func NewGreenhouseClient(client *http.Client) *GreenhouseClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &GreenhouseClient{
		baseURL: greenhouseBaseURL,
		client:  client,
		backoff: resilience.DefaultBackoff(),
	}
}

type greenhouseJob struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	CompanyName string `json:"company_name"`
	Content     string `json:"content"` // HTML, entity-escaped
	AbsoluteURL string `json:"absolute_url"`
	Location    struct {
		Name string `json:"name"`
	} `json:"location"`
	Departments []struct {
		Name string `json:"name"`
	} `json:"departments"`
}

type greenhouseBoard struct {
	Name string `json:"name"`
}

// FetchPosting retrieves one posting and maps it to extracted fields.
func (c *GreenhouseClient) FetchPosting(ctx context.Context, slug, postingID string) (model.ExtractedFields, error) {
	var fields model.ExtractedFields

	u := fmt.Sprintf("%s/%s/jobs/%s", c.baseURL, slug, postingID)
	var job greenhouseJob
	if err := c.getJSON(ctx, u, &job); err != nil {
		return fields, eris.Wrapf(err, "greenhouse: posting %s/%s", slug, postingID)
	}

	fields.Title = strPtr(job.Title)
	fields.Location = strPtr(job.Location.Name)
	fields.RemoteType = remoteTypeFromLocation(job.Location.Name)

	company := job.CompanyName
	if company == "" {
		// The job payload omits the company on most boards; the board
		// endpoint carries it.
		var board greenhouseBoard
		if err := c.getJSON(ctx, fmt.Sprintf("%s/%s", c.baseURL, slug), &board); err == nil {
			company = board.Name
		}
	}
	fields.CompanyName = strPtr(company)

	desc := contentToText(html.UnescapeString(job.Content))
	fields.Description = strPtr(desc)
	if s := extract.ParseSalary(desc); s != nil {
		fields.Salary = s
	}

	return fields, nil
}

func (c *GreenhouseClient) getJSON(ctx context.Context, u string, out any) error {
	return getJSON(ctx, c.client, c.backoff, u, out)
}

// getJSON is shared by the vendor clients: GET with backoff on
// transient failures, transient classification on status, JSON decode.
func getJSON(ctx context.Context, client *http.Client, backoff resilience.BackoffConfig, u string, out any) error {
	_, err := resilience.DoVal(ctx, backoff, "ats: get json", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, getJSONOnce(ctx, client, u, out)
	})
	return err
}

func getJSONOnce(ctx context.Context, client *http.Client, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		statusErr := eris.Errorf("unexpected status %s", resp.Status)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return statusErr
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// contentToText strips markup from a vendor-provided HTML description.
func contentToText(htmlContent string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return strings.TrimSpace(htmlContent)
	}
	doc.Find("script, style").Remove()
	text := doc.Text()
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, l := range lines {
		if t := strings.TrimSpace(l); t != "" {
			out = append(out, t)
		}
	}
	return strings.Join(out, "\n")
}

func remoteTypeFromLocation(location string) *model.RemoteType {
	l := strings.ToLower(location)
	switch {
	case strings.Contains(l, "remote"):
		return remotePtr(model.RemoteTypeRemote)
	case strings.Contains(l, "hybrid"):
		return remotePtr(model.RemoteTypeHybrid)
	case location != "":
		return remotePtr(model.RemoteTypeOnsite)
	default:
		return nil
	}
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func remotePtr(rt model.RemoteType) *model.RemoteType { return &rt }
