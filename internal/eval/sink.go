package eval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/papertrade/engine/internal/model"
)

// Compile-time interface checks.
var _ FeedbackSink = (*LogSink)(nil)
var _ FeedbackSink = (*HTTPSink)(nil)

// LogSink writes outcomes to the structured log. Used when no feedback
// pipeline is configured.
type LogSink struct{}

// Record logs the outcome.
func (LogSink) Record(_ context.Context, o model.Outcome) error {
	slog.Info("performance outcome",
		"position", o.PositionID,
		"ticker", o.Ticker,
		"strategy", o.StrategyID,
		"label", string(o.Label),
		"pnl_pct", o.PnLPct.String(),
	)
	return nil
}

// HTTPSink POSTs outcomes as JSON to the feedback pipeline endpoint.
type HTTPSink struct {
	url    string
	client *http.Client
}

// NewHTTPSink creates a sink against the given endpoint URL.
func NewHTTPSink(url string, timeout time.Duration) *HTTPSink {
	return &HTTPSink{
		url: url,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Record delivers one outcome. The response body is ignored; only a
// transport failure or non-2xx status is reported.
func (s *HTTPSink) Record(ctx context.Context, o model.Outcome) error {
	body, err := json.Marshal(o)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("feedback post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("feedback post: status %d", resp.StatusCode)
	}
	return nil
}
