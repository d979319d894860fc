package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
)

// SubmitMessage is the payload accepted on the MQTT submit topic.
// Exactly one of AudioKey (already in the store) or Path (local to the
// server) must be set.
type SubmitMessage struct {
	AudioKey     string  `json:"audio_key,omitempty"`
	Path         string  `json:"path,omitempty"`
	Language     string  `json:"language,omitempty"`
	GapThreshold float64 `json:"gap_threshold,omitempty"`
}

// NewMQTTHandler returns a message handler that turns submit messages
// into jobs.
func NewMQTTHandler(submitter *Submitter, log zerolog.Logger) func(topic string, payload []byte) {
	log = log.With().Str("component", "mqtt-intake").Logger()

	return func(topic string, payload []byte) {
		var msg SubmitMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("invalid submit payload")
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		var err error
		switch {
		case msg.AudioKey != "":
			_, err = submitter.SubmitKey(ctx, msg.AudioKey, msg.Language, msg.GapThreshold, "mqtt")
		case msg.Path != "":
			_, err = submitter.SubmitPath(ctx, msg.Path, SubmitOptions{
				Language:     msg.Language,
				GapThreshold: msg.GapThreshold,
				Source:       "mqtt",
			})
		default:
			log.Warn().Str("topic", topic).Msg("submit message missing audio_key and path")
			return
		}
		if err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("mqtt submit failed")
		}
	}
}
