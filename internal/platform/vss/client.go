package vss

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/navincodesalot/moonshot/internal/platform/ctxutil"
	"github.com/navincodesalot/moonshot/internal/platform/httpx"
	"github.com/navincodesalot/moonshot/internal/platform/logger"
)

const (
	DefaultModel         = "Cosmos-Reason2-8B"
	DefaultChunkDuration = 10
	serviceName          = "VSS"
)

// FileInfo is the intake record the video summarization service keeps per upload.
type FileInfo struct {
	ID        string `json:"id"`
	Filename  string `json:"filename"`
	Purpose   string `json:"purpose"`
	Bytes     int64  `json:"bytes"`
	CreatedAt int64  `json:"created_at"`
	// Extra keeps fields this client does not model.
	Extra map[string]any `json:"-"`
}

// SummarizeRequest carries the prompt stages of one summarization call.
type SummarizeRequest struct {
	FileID                     string
	Prompt                     string
	SystemPrompt               string
	CaptionSummarizationPrompt string
	SummaryAggregationPrompt   string
}

type Config struct {
	BaseURL       string
	Model         string
	ChunkDuration int
	Timeout       time.Duration
}

// Client talks to a video search and summarization (VSS) deployment.
type Client interface {
	UploadFile(ctx context.Context, file io.Reader, filename string) (*FileInfo, error)
	Summarize(ctx context.Context, req SummarizeRequest) (string, error)
	GetFile(ctx context.Context, fileID string) (*FileInfo, error)
}

type client struct {
	log           *logger.Logger
	baseURL       string
	model         string
	chunkDuration int
	httpClient    *http.Client
}

func NewClient(log *logger.Logger, cfg Config) (Client, error) {
	base, err := NormalizeBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	chunk := cfg.ChunkDuration
	if chunk <= 0 {
		chunk = DefaultChunkDuration
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}
	return &client{
		log:           log.With("client", "VSSClient"),
		baseURL:       base,
		model:         model,
		chunkDuration: chunk,
		httpClient:    &http.Client{Timeout: timeout},
	}, nil
}

// NormalizeBaseURL trims trailing slashes and assumes http:// when no scheme is given.
func NormalizeBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("missing VSS_BASE_URL")
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "http://" + raw
	}
	raw = strings.TrimRight(raw, "/")
	if _, err := url.Parse(raw); err != nil {
		return "", fmt.Errorf("invalid VSS base url %q: %w", raw, err)
	}
	return raw, nil
}

func (c *client) UploadFile(ctx context.Context, file io.Reader, filename string) (*FileInfo, error) {
	if file == nil {
		return nil, fmt.Errorf("file required")
	}
	pr, pw := io.Pipe()
	defer pr.Close()
	mw := multipart.NewWriter(pw)
	go func() {
		err := func() error {
			if err := mw.WriteField("purpose", "vision"); err != nil {
				return err
			}
			if err := mw.WriteField("media_type", "video"); err != nil {
				return err
			}
			part, err := mw.CreateFormFile("file", filename)
			if err != nil {
				return err
			}
			if _, err := io.Copy(part, file); err != nil {
				return err
			}
			return mw.Close()
		}()
		_ = pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/files", pr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("VSS upload: %w", err)
	}
	defer resp.Body.Close()
	if err := httpx.CheckResponse(resp, serviceName, "upload"); err != nil {
		c.log.Warn("VSS upload rejected", append(ctxutil.LogFields(ctx), "status", resp.StatusCode)...)
		return nil, err
	}

	info, err := decodeFileInfo(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("VSS upload: decode response: %w", err)
	}
	if strings.TrimSpace(info.ID) == "" {
		return nil, fmt.Errorf("VSS upload: response has no file id")
	}
	c.log.Info("VSS upload complete",
		append(ctxutil.LogFields(ctx), "file_id", info.ID, "filename", filename, "duration_ms", time.Since(start).Milliseconds())...,
	)
	return info, nil
}

type summarizeBody struct {
	ID                         string `json:"id"`
	Prompt                     string `json:"prompt"`
	SystemPrompt               string `json:"system_prompt,omitempty"`
	CaptionSummarizationPrompt string `json:"caption_summarization_prompt,omitempty"`
	SummaryAggregationPrompt   string `json:"summary_aggregation_prompt,omitempty"`
	Model                      string `json:"model"`
	ChunkDuration              int    `json:"chunk_duration"`
}

type summarizeResponse struct {
	Choices []struct {
		Message *struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Summarize returns the first choice's message text, or the whole response
// body when the service answered without one.
func (c *client) Summarize(ctx context.Context, in SummarizeRequest) (string, error) {
	if strings.TrimSpace(in.FileID) == "" {
		return "", fmt.Errorf("file id required")
	}
	body, err := json.Marshal(summarizeBody{
		ID:                         in.FileID,
		Prompt:                     in.Prompt,
		SystemPrompt:               in.SystemPrompt,
		CaptionSummarizationPrompt: in.CaptionSummarizationPrompt,
		SummaryAggregationPrompt:   in.SummaryAggregationPrompt,
		Model:                      c.model,
		ChunkDuration:              c.chunkDuration,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/summarize", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("VSS summarize: %w", err)
	}
	defer resp.Body.Close()
	if err := httpx.CheckResponse(resp, serviceName, "summarize"); err != nil {
		return "", err
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("VSS summarize: read response: %w", err)
	}
	var parsed summarizeResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("VSS summarize: decode response: %w", err)
	}
	c.log.Info("VSS summarize complete",
		append(ctxutil.LogFields(ctx), "file_id", in.FileID, "duration_ms", time.Since(start).Milliseconds())...,
	)
	if len(parsed.Choices) > 0 && parsed.Choices[0].Message != nil && parsed.Choices[0].Message.Content != "" {
		return parsed.Choices[0].Message.Content, nil
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return string(raw), nil
	}
	return compact.String(), nil
}

func (c *client) GetFile(ctx context.Context, fileID string) (*FileInfo, error) {
	if strings.TrimSpace(fileID) == "" {
		return nil, fmt.Errorf("file id required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/files/"+url.PathEscape(fileID), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("VSS get file info: %w", err)
	}
	defer resp.Body.Close()
	if err := httpx.CheckResponse(resp, serviceName, "get file info"); err != nil {
		return nil, err
	}
	info, err := decodeFileInfo(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("VSS get file info: decode response: %w", err)
	}
	return info, nil
}

func decodeFileInfo(r io.Reader) (*FileInfo, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var info FileInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, err
	}
	var all map[string]any
	if err := json.Unmarshal(raw, &all); err == nil {
		for _, k := range []string{"id", "filename", "purpose", "bytes", "created_at"} {
			delete(all, k)
		}
		if len(all) > 0 {
			info.Extra = all
		}
	}
	return &info, nil
}
