package assemble

import (
	"encoding/json"
	"math"
	"sort"
)

// UnknownSpeaker is the label applied when no diarization turn can be matched
// to a word and no neighboring word can lend its label.
const UnknownSpeaker = "UNKNOWN"

// Turn is one contiguous diarization span attributed to a single speaker.
// After normalization: Start >= 0, End > Start, both finite.
type Turn struct {
	Start float64
	End   float64
	Label string
}

// Timespan is a raw [Start, End) interval from a diarization track.
type Timespan struct {
	Start float64
	End   float64
}

// Track is one entry of a track-iterable diarization result (annotation-style
// output: a timespan, a track identifier, and a speaker label).
type Track struct {
	Span  Timespan
	Track string
	Label string
}

// TrackIterator is the annotation-like diarization shape. Diarization
// pipelines that expose per-track iteration satisfy this.
type TrackIterator interface {
	IterTracks() []Track
}

// RowIterator is the tabular diarization shape: each row is a loosely typed
// map keyed by column name ("start", "end", "speaker" or "label"). Values may
// be missing or non-numeric; bad rows are dropped, not errored.
type RowIterator interface {
	IterRows() []map[string]any
}

// TurnRecord is one entry of the plain segments-payload diarization shape.
// Start and End are loosely typed so a record with a null or string time
// degrades to a dropped record instead of a decode failure.
type TurnRecord struct {
	Start   any    `json:"start"`
	End     any    `json:"end"`
	Speaker string `json:"speaker,omitempty"`
	Label   string `json:"label,omitempty"`
}

// TurnPayload is the segments-payload diarization shape.
type TurnPayload struct {
	Segments []TurnRecord `json:"segments"`
}

// NormalizeTurns cleans raw diarization output into sorted, valid speaker
// turns. The source shape is detected by capability probing: a TrackIterator,
// a RowIterator, a TurnPayload, or a generic map with a "segments" list.
// Anything else — including nil — normalizes to no turns.
//
// Per record: label falls back speaker → label → "UNKNOWN"; records with
// missing, non-numeric or non-finite times are dropped; negative times are
// clamped to 0; non-positive durations are dropped. Never fails: upstream
// diarization quality is inherently variable and a bad record must not abort
// a transcript.
func NormalizeTurns(src any) []Turn {
	var raw []Turn

	switch d := src.(type) {
	case nil:
		return nil
	case TrackIterator:
		for _, tr := range d.IterTracks() {
			label := tr.Label
			if label == "" {
				label = UnknownSpeaker
			}
			raw = append(raw, Turn{Start: tr.Span.Start, End: tr.Span.End, Label: label})
		}
	case RowIterator:
		for _, row := range d.IterRows() {
			if t, ok := turnFromRecord(row["start"], row["end"], stringField(row, "speaker"), stringField(row, "label")); ok {
				raw = append(raw, t)
			}
		}
	case *TurnPayload:
		if d != nil {
			raw = turnsFromRecords(d.Segments)
		}
	case TurnPayload:
		raw = turnsFromRecords(d.Segments)
	case map[string]any:
		segs, ok := d["segments"].([]any)
		if !ok {
			return nil
		}
		for _, s := range segs {
			row, ok := s.(map[string]any)
			if !ok {
				continue
			}
			if t, ok := turnFromRecord(row["start"], row["end"], stringField(row, "speaker"), stringField(row, "label")); ok {
				raw = append(raw, t)
			}
		}
	default:
		return nil
	}

	cleaned := raw[:0]
	for _, t := range raw {
		if !isFinite(t.Start) || !isFinite(t.End) {
			continue
		}
		if t.Start < 0 {
			t.Start = 0
		}
		if t.End < 0 {
			t.End = 0
		}
		if t.End <= t.Start {
			continue
		}
		cleaned = append(cleaned, t)
	}

	sort.SliceStable(cleaned, func(i, j int) bool {
		if cleaned[i].Start != cleaned[j].Start {
			return cleaned[i].Start < cleaned[j].Start
		}
		return cleaned[i].End < cleaned[j].End
	})
	return cleaned
}

func turnsFromRecords(recs []TurnRecord) []Turn {
	var turns []Turn
	for _, r := range recs {
		if t, ok := turnFromRecord(r.Start, r.End, r.Speaker, r.Label); ok {
			turns = append(turns, t)
		}
	}
	return turns
}

func turnFromRecord(start, end any, speaker, label string) (Turn, bool) {
	s, ok := asFloat(start)
	if !ok {
		return Turn{}, false
	}
	e, ok := asFloat(end)
	if !ok {
		return Turn{}, false
	}
	l := speaker
	if l == "" {
		l = label
	}
	if l == "" {
		l = UnknownSpeaker
	}
	return Turn{Start: s, End: e, Label: l}, true
}

func stringField(row map[string]any, key string) string {
	if v, ok := row[key].(string); ok {
		return v
	}
	return ""
}

// asFloat extracts a float from the numeric types diarization payloads show up
// with after decoding.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
