package asr

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/snarg/dt-engine/internal/assemble"
)

// Align sends the raw transcription segments back with the audio so the
// forced-alignment service can attach word-level timings.
func (c *Client) Align(ctx context.Context, audioPath string, segments []assemble.Segment) (*assemble.AlignmentResult, error) {
	segJSON, err := json.Marshal(segments)
	if err != nil {
		return nil, fmt.Errorf("align: marshal segments: %w", err)
	}

	fields := map[string]string{
		"language": c.opts.Language,
		"segments": string(segJSON),
	}

	var result assemble.AlignmentResult
	if err := c.postMultipart(ctx, c.opts.AlignURL, audioPath, fields, &result); err != nil {
		return nil, fmt.Errorf("align: %w", err)
	}
	return &result, nil
}
