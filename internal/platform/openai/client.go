package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/navincodesalot/moonshot/internal/observability"
	"github.com/navincodesalot/moonshot/internal/platform/ctxutil"
	"github.com/navincodesalot/moonshot/internal/platform/logger"
)

const responsesPath = "/v1/responses"

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	// Temperature is omitted from requests when nil.
	Temperature *float64
}

// Client is the subset of the OpenAI Responses API the pipeline needs.
type Client interface {
	// GenerateJSON asks for output conforming to schema (strict json_schema mode)
	// and returns the model's JSON text unparsed.
	GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (string, error)
	Model() string
}

type client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client

	temperature *float64
}

func NewClient(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, fmt.Errorf("missing OPENAI_MODEL")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 600 * time.Second
	}
	return &client{
		log:         log.With("service", "OpenAIClient"),
		baseURL:     baseURL,
		apiKey:      apiKey,
		model:       model,
		httpClient:  &http.Client{Timeout: timeout},
		temperature: cfg.Temperature,
	}, nil
}

func (c *client) Model() string { return c.model }

type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("openai http %d: %s", e.StatusCode, e.Body)
}

func (e *HTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

type responsesRequest struct {
	Model string `json:"model"`

	Input []inputMessage `json:"input"`

	Text struct {
		Format map[string]any `json:"format,omitempty"`
	} `json:"text,omitempty"`

	Temperature *float64 `json:"temperature,omitempty"`
}

type inputMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type responsesResponse struct {
	Output []struct {
		Type    string `json:"type"`
		Role    string `json:"role,omitempty"`
		Content []struct {
			Type    string `json:"type"`
			Text    string `json:"text,omitempty"`
			Refusal string `json:"refusal,omitempty"`
		} `json:"content,omitempty"`
	} `json:"output"`
	Refusal string `json:"refusal,omitempty"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage,omitempty"`
}

func extractOutputText(resp responsesResponse) (text string, refusal string) {
	var out strings.Builder
	for _, item := range resp.Output {
		if item.Type != "message" || item.Role != "assistant" {
			continue
		}
		for _, c := range item.Content {
			switch {
			case c.Type == "output_text" && c.Text != "":
				out.WriteString(c.Text)
			case c.Type == "refusal" && c.Refusal != "":
				refusal = c.Refusal
			}
		}
	}
	if refusal == "" {
		refusal = resp.Refusal
	}
	return out.String(), refusal
}

func (c *client) GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (string, error) {
	if schemaName == "" {
		return "", errors.New("schemaName required")
	}
	if schema == nil {
		return "", errors.New("schema required")
	}

	req := responsesRequest{
		Model: c.model,
		Input: []inputMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}
	req.Text.Format = map[string]any{
		"type":   "json_schema",
		"name":   schemaName,
		"schema": schema,
		"strict": true,
	}
	req.Temperature = c.temperature

	var resp responsesResponse
	if err := c.send(ctx, &req, &resp); err != nil {
		return "", err
	}
	text, refusal := extractOutputText(resp)
	if refusal != "" {
		return "", fmt.Errorf("model refused: %s", refusal)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("no output_text found in response")
	}
	return text, nil
}

// send makes a single request. A model that rejects temperature is reported as a
// configuration error and the request is not re-sent.
func (c *client) send(ctx context.Context, req *responsesRequest, out *responsesResponse) error {
	err := c.do(ctx, req, out)
	if err != nil && req.Temperature != nil && isUnsupportedTemperature(err) {
		return fmt.Errorf("model %s does not accept temperature; unset OPENAI_TEMPERATURE: %w", req.Model, err)
	}
	return err
}

func isUnsupportedTemperature(err error) bool {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusBadRequest {
		return false
	}
	msg := strings.ToLower(httpErr.Body)
	if !strings.Contains(msg, "temperature") {
		return false
	}
	for _, marker := range []string{"unsupported parameter", "unknown parameter", "not supported", "does not support", "only the default", "unsupported_value"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func (c *client) do(ctx context.Context, body *responsesRequest, out *responsesResponse) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+responsesPath, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		observability.Current().ObserveLLMRequest(body.Model, responsesPath, statusFromErr(err), time.Since(start), 0, 0)
		return err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return readErr
	}
	status := strconv.Itoa(resp.StatusCode)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		observability.Current().ObserveLLMRequest(body.Model, responsesPath, status, time.Since(start), 0, 0)
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("openai decode error: %w", err)
	}
	observability.Current().ObserveLLMRequest(body.Model, responsesPath, status, time.Since(start), out.Usage.InputTokens, out.Usage.OutputTokens)
	c.log.Debug("OpenAI response received",
		append(ctxutil.LogFields(ctx),
			"model", body.Model,
			"duration_ms", time.Since(start).Milliseconds(),
			"input_tokens", out.Usage.InputTokens,
			"output_tokens", out.Usage.OutputTokens,
		)...,
	)
	return nil
}

func statusFromErr(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}
