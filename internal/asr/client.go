// Package asr holds the HTTP clients for the three upstream ML collaborators:
// speech recognition, forced alignment, and speaker diarization. Each is an
// external service; this package only speaks their request/response schemas
// and produces the input types the assemble package consumes.
package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// Options configures the collaborator endpoints.
type Options struct {
	TranscribeURL string
	AlignURL      string
	DiarizeURL    string
	Model         string // model identifier forwarded to the recognition service
	Language      string // defaults to "en"
	Timeout       time.Duration
}

// Client calls the three upstream services over HTTP multipart uploads.
type Client struct {
	opts   Options
	client *http.Client
}

// New creates a collaborator client.
func New(opts Options) *Client {
	if opts.Language == "" {
		opts.Language = "en"
	}
	return &Client{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
	}
}

// postMultipart uploads the audio file plus extra form fields to url and
// decodes the JSON response into out.
func (c *Client) postMultipart(ctx context.Context, url, audioPath string, fields map[string]string, out any) error {
	f, err := os.Open(audioPath)
	if err != nil {
		return fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("copy audio data: %w", err)
	}

	for k, v := range fields {
		if v != "" {
			w.WriteField(k, v)
		}
	}
	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
