package asr

import (
	"context"
	"fmt"

	"github.com/snarg/dt-engine/internal/assemble"
)

// Diarize runs speaker diarization on the audio. The service replies with the
// segments-payload shape; track- and row-iterable shapes only enter the engine
// through library callers that already hold such objects.
func (c *Client) Diarize(ctx context.Context, audioPath string) (*assemble.TurnPayload, error) {
	var result assemble.TurnPayload
	if err := c.postMultipart(ctx, c.opts.DiarizeURL, audioPath, nil, &result); err != nil {
		return nil, fmt.Errorf("diarize: %w", err)
	}
	return &result, nil
}
