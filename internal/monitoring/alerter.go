// Package monitoring forwards unexpected pipeline failures to an
// operator-facing webhook. Routine failures stay in the attempt trail;
// only the class of error nobody planned for should reach a human.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/jobintel/internal/config"
)

// Alert is one unexpected-failure notification with enough context to
// find the record and attempt it came from.
type Alert struct {
	Severity  string            `json:"severity"`
	Message   string            `json:"message"`
	Context   map[string]string `json:"context,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Alerter posts alerts to the configured webhook URL. With no URL
// configured it degrades to log-only.
type Alerter struct {
	cfg    config.AlertConfig
	client *http.Client
}

// NewAlerter creates an Alerter with the given alert config.
func NewAlerter(cfg config.AlertConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Notify delivers one alert. Delivery failure is logged, never
// propagated: alerting must not take the pipeline down with it.
func (a *Alerter) Notify(ctx context.Context, summary string, fields map[string]string) {
	zap.L().Error("unexpected pipeline failure",
		zap.String("summary", summary),
		zap.Any("context", fields),
	)

	if a.cfg.WebhookURL == "" {
		return
	}

	alert := Alert{
		Severity:  "high",
		Message:   summary,
		Context:   fields,
		Timestamp: time.Now().UTC(),
	}
	if err := a.sendWebhook(ctx, alert); err != nil {
		zap.L().Error("monitoring: failed to send alert",
			zap.String("summary", summary),
			zap.Error(err),
		)
		return
	}
	zap.L().Info("monitoring: alert sent", zap.String("summary", summary))
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
