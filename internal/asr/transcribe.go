package asr

import (
	"context"
	"fmt"

	"github.com/snarg/dt-engine/internal/assemble"
)

// Transcribe sends audio to the speech-recognition service and returns raw
// segments (start/end/text, no word timings yet).
func (c *Client) Transcribe(ctx context.Context, audioPath string) (*assemble.TranscriptionResult, error) {
	fields := map[string]string{
		"model":           c.opts.Model,
		"language":        c.opts.Language,
		"task":            "transcribe",
		"response_format": "verbose_json",
	}

	var result assemble.TranscriptionResult
	if err := c.postMultipart(ctx, c.opts.TranscribeURL, audioPath, fields, &result); err != nil {
		return nil, fmt.Errorf("transcribe: %w", err)
	}
	return &result, nil
}
