// Package classify consumes the external content classifier capability.
// The gateway is pluggable and possibly unreliable: every call carries a
// hard timeout, and callers fail open with reduced confidence when it is
// down — moderation availability must never become a chat outage.
package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/quietroom/warden/internal/model"
)

// DegradedConfidence is the confidence assigned to fail-open assessments.
const DegradedConfidence = 0.3

// Assessment is the structured risk signal returned by the gateway.
type Assessment struct {
	Allowed    bool           `json:"allowed"`
	Confidence float64        `json:"confidence"`
	Reasons    []string       `json:"reasons"`
	Category   model.Category `json:"category"`
}

// Classifier is the capability consumed by the enforcement policies.
type Classifier interface {
	Classify(ctx context.Context, text string, meta map[string]string) (Assessment, error)
}

// Degraded returns the fail-open assessment used when the gateway is
// unavailable: allowed, low confidence, never an error to the end user.
func Degraded() Assessment {
	return Assessment{
		Allowed:    true,
		Confidence: DegradedConfidence,
		Reasons:    []string{"classifier unavailable, local rules only"},
		Category:   model.CategorySafe,
	}
}

// Config holds gateway client parameters.
type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// HTTPClassifier calls a remote classifier over HTTP with a bounded timeout.
type HTTPClassifier struct {
	cfg    Config
	client *http.Client
}

// NewHTTP creates an HTTP gateway client. Timeout defaults to 3 s.
func NewHTTP(cfg Config) *HTTPClassifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	return &HTTPClassifier{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type classifyRequest struct {
	Text    string            `json:"text"`
	Context map[string]string `json:"context,omitempty"`
}

// Classify sends the text for remote assessment. The context deadline is
// capped at the configured timeout regardless of the caller's deadline.
func (c *HTTPClassifier) Classify(ctx context.Context, text string, meta map[string]string) (Assessment, error) {
	body, err := json.Marshal(classifyRequest{Text: text, Context: meta})
	if err != nil {
		return Assessment{}, fmt.Errorf("encode classify request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return Assessment{}, fmt.Errorf("build classify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Assessment{}, fmt.Errorf("classify call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain a little of the body for the error message.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return Assessment{}, fmt.Errorf("classify call: status %d: %s", resp.StatusCode, snippet)
	}

	var a Assessment
	if err := json.NewDecoder(resp.Body).Decode(&a); err != nil {
		return Assessment{}, fmt.Errorf("decode classify response: %w", err)
	}

	if a.Confidence < 0 {
		a.Confidence = 0
	}
	if a.Confidence > 1 {
		a.Confidence = 1
	}
	if a.Category == "" {
		a.Category = model.CategorySafe
	}
	return a, nil
}

// Func adapts a plain function to the Classifier interface. Test hook.
type Func func(ctx context.Context, text string, meta map[string]string) (Assessment, error)

// Classify implements Classifier.
func (f Func) Classify(ctx context.Context, text string, meta map[string]string) (Assessment, error) {
	return f(ctx, text, meta)
}
