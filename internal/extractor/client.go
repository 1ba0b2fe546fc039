package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/insuredocs/docquery/internal/config"
	"github.com/insuredocs/docquery/internal/models"
)

// Client talks to the structural extractor service's /parse endpoint. The
// service owns table structure recognition and page markers; this side only
// moves bytes and enforces the pipeline's timeout.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(cfg config.ExtractorConfig) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type parseResponse struct {
	Markdown  string `json:"markdown"`
	PageCount int    `json:"page_count"`
}

func (c *Client) Extract(ctx context.Context, data []byte, filename string) (*Result, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("build multipart form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("write file part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/parse", &body)
	if err != nil {
		return nil, fmt.Errorf("create parse request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrExtraction, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: extractor returned %d: %s", models.ErrExtraction, resp.StatusCode, msg)
	}

	var parsed parseResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decode extractor response: %v", models.ErrExtraction, err)
	}
	if parsed.Markdown == "" {
		return nil, fmt.Errorf("%w: extractor returned empty document", models.ErrExtraction)
	}

	return &Result{Markdown: parsed.Markdown, PageCount: parsed.PageCount}, nil
}
