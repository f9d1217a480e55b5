// Package ai is the model-backed stage of the extraction cascade.
package ai

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/jobintel/internal/config"
	"github.com/sells-group/jobintel/internal/extract"
	"github.com/sells-group/jobintel/internal/model"
	"github.com/sells-group/jobintel/pkg/anthropic"
)

const systemPrompt = `You extract structured data from job postings. Given the URL and text
of a job posting page, respond with a single JSON object and nothing else:

{
  "title": "job title or null",
  "company_name": "hiring company or null",
  "description": "the posting body, cleaned of boilerplate, or null",
  "location": "primary location or null",
  "remote_type": "remote" | "hybrid" | "onsite" | null,
  "salary": {"min": number, "max": number, "currency": "ISO 4217 code", "period": "year" | "hour"} or null,
  "sections": {"requirements": "...", "responsibilities": "...", "benefits": "..."} or null,
  "confidence": number between 0 and 1
}

Omit any field you cannot determine (use null). Only report a salary the
posting states explicitly; never infer one. Confidence reflects how much
of the posting you could account for.`

// Extractor calls Claude to pull fields out of cleaned posting text.
type Extractor struct {
	client anthropic.Client
	cfg    config.AnthropicConfig
}

// New creates the AI stage.
func New(client anthropic.Client, cfg config.AnthropicConfig) *Extractor {
	return &Extractor{client: client, cfg: cfg}
}

func (e *Extractor) Name() string { return "ai" }

// Supports requires cleaned text; the model never sees raw markup.
func (e *Extractor) Supports(in extract.Input) bool {
	return in.CleanedText != ""
}

// aiPayload mirrors the JSON contract in the system prompt.
type aiPayload struct {
	Title       *string           `json:"title"`
	CompanyName *string           `json:"company_name"`
	Description *string           `json:"description"`
	Location    *string           `json:"location"`
	RemoteType  *string           `json:"remote_type"`
	Salary      *model.Salary     `json:"salary"`
	Sections    map[string]string `json:"sections"`
	Confidence  float64           `json:"confidence"`
}

// Extract sends the cleaned text to the model and maps its answer.
// A malformed or empty answer degrades to a zero-confidence result
// rather than an error: the cascade treats it as "produced nothing".
func (e *Extractor) Extract(ctx context.Context, in extract.Input) (*extract.Result, error) {
	if e.cfg.TimeoutSecs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(e.cfg.TimeoutSecs)*time.Second)
		defer cancel()
	}

	resp, err := e.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     e.cfg.Model,
		MaxTokens: e.cfg.MaxTokens,
		System: []anthropic.SystemBlock{
			{Text: systemPrompt, CacheControl: &anthropic.CacheControl{TTL: "5m"}},
		},
		Messages: []anthropic.Message{
			{Role: "user", Content: userMessage(in)},
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "ai: create message")
	}
	resp.Usage.LogCost(e.cfg.Model, "extract")

	payload, ok := parsePayload(resp.Text())
	if !ok {
		zap.L().Warn("ai extraction returned unparseable output",
			zap.String("job_id", in.JobID),
			zap.String("stop_reason", resp.StopReason),
		)
		return &extract.Result{Method: model.MethodAI}, nil
	}

	fields := payload.toFields()
	confidence := payload.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	if fields.IsEmpty() {
		confidence = 0
	}

	return &extract.Result{
		Fields:     fields,
		Confidence: confidence,
		Method:     model.MethodAI,
	}, nil
}

// userMessage pairs the posting URL with the cleaned text. The host and
// path slug often carry the company and title when the body is thin.
func userMessage(in extract.Input) string {
	if in.URL == "" {
		return in.CleanedText
	}
	return "Posting URL: " + in.URL + "\n\n" + in.CleanedText
}

// parsePayload tolerates code fences and prose around the JSON object.
func parsePayload(text string) (*aiPayload, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, false
	}

	var p aiPayload
	if err := json.Unmarshal([]byte(text[start:end+1]), &p); err != nil {
		return nil, false
	}
	return &p, true
}

func (p *aiPayload) toFields() model.ExtractedFields {
	var f model.ExtractedFields

	f.Title = nonEmpty(p.Title)
	f.CompanyName = nonEmpty(p.CompanyName)
	f.Description = nonEmpty(p.Description)
	f.Location = nonEmpty(p.Location)

	if p.RemoteType != nil {
		switch model.RemoteType(strings.ToLower(*p.RemoteType)) {
		case model.RemoteTypeRemote, model.RemoteTypeHybrid, model.RemoteTypeOnsite:
			rt := model.RemoteType(strings.ToLower(*p.RemoteType))
			f.RemoteType = &rt
		}
	}

	// The model's salary claim gets the same validation as every other
	// source; an implausible one is dropped, not passed through.
	if p.Salary != nil {
		if p.Salary.Period == "" {
			p.Salary.Period = "year"
		}
		p.Salary.Currency = strings.ToUpper(p.Salary.Currency)
		if extract.ValidateSalary(p.Salary) == nil {
			f.Salary = p.Salary
		}
	}

	if len(p.Sections) > 0 {
		f.Sections = make(map[string]string, len(p.Sections))
		for k, v := range p.Sections {
			if v = strings.TrimSpace(v); v != "" {
				f.Sections[strings.ToLower(strings.TrimSpace(k))] = v
			}
		}
		if len(f.Sections) == 0 {
			f.Sections = nil
		}
	}

	return f
}

func nonEmpty(s *string) *string {
	if s == nil {
		return nil
	}
	if t := strings.TrimSpace(*s); t != "" {
		return &t
	}
	return nil
}
