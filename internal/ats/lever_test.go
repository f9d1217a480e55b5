package ats

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/jobintel/internal/model"
)

const leverPostingBody = `{
	"id": "f9d5e828-1b3c-4a5e-9c3d-111122223333",
	"text": "Staff Backend Engineer",
	"descriptionPlain": "Build the ingestion platform end to end.",
	"workplaceType": "hybrid",
	"categories": {
		"team": "Platform",
		"location": "Denver, CO",
		"allLocations": ["Denver, CO", "Austin, TX"]
	},
	"salaryRange": {"min": 160000, "max": 195000, "currency": "usd", "interval": "per-year-salary"},
	"lists": [
		{"text": "Requirements", "content": "<li>Go</li><li>Postgres</li>"},
		{"text": "Benefits", "content": "<li>Health insurance</li>"}
	]
}`

func TestLeverFetchPosting(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/acme-corp/f9d5e828-1b3c-4a5e-9c3d-111122223333", r.URL.Path)
		assert.Equal(t, "json", r.URL.Query().Get("mode"))
		w.Write([]byte(leverPostingBody))
	}))
	defer srv.Close()

	c := &LeverClient{baseURL: srv.URL, client: srv.Client()}
	fields, err := c.FetchPosting(context.Background(), "acme-corp", "f9d5e828-1b3c-4a5e-9c3d-111122223333")
	require.NoError(t, err)

	require.NotNil(t, fields.Title)
	assert.Equal(t, "Staff Backend Engineer", *fields.Title)
	require.NotNil(t, fields.CompanyName)
	assert.Equal(t, "Acme Corp", *fields.CompanyName)
	require.NotNil(t, fields.Location)
	assert.Equal(t, "Denver, CO, Austin, TX", *fields.Location)
	require.NotNil(t, fields.RemoteType)
	assert.Equal(t, model.RemoteTypeHybrid, *fields.RemoteType)

	require.NotNil(t, fields.Salary)
	assert.InDelta(t, 160000, fields.Salary.Min, 0.01)
	assert.InDelta(t, 195000, fields.Salary.Max, 0.01)
	assert.Equal(t, "USD", fields.Salary.Currency)
	assert.Equal(t, "year", fields.Salary.Period)

	require.Len(t, fields.Sections, 2)
	assert.Contains(t, fields.Sections["requirements"], "Go")
	assert.Contains(t, fields.Sections["benefits"], "Health insurance")
}

func TestLeverFetchPosting_InvalidSalaryRangeDropped(t *testing.T) {
	body := `{
		"id": "abc",
		"text": "Engineer",
		"descriptionPlain": "No compensation details published.",
		"salaryRange": {"min": 200000, "max": 100000, "currency": "usd", "interval": "per-year-salary"}
	}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	c := &LeverClient{baseURL: srv.URL, client: srv.Client()}
	fields, err := c.FetchPosting(context.Background(), "acme", "abc")
	require.NoError(t, err)
	assert.Nil(t, fields.Salary)
}
