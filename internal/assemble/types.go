// Package assemble reconciles two independently produced signals — a word-level
// aligned transcript and a set of diarization speaker turns — into a single
// chronological, speaker-attributed sequence of utterances. The two upstream
// models disagree at boundaries and diarization frequently fails to cover a
// word's time span, so nothing here trusts either signal in isolation.
package assemble

// TranscriptionResult is the raw output of the speech-recognition collaborator:
// segment boundaries and text, no word-level timing yet.
type TranscriptionResult struct {
	Segments []Segment `json:"segments"`
}

// Segment is one raw transcription segment before alignment.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// AlignmentResult is the output of the forced-alignment collaborator. Its
// segments carry the word-level timings this package consumes.
type AlignmentResult struct {
	Segments []AlignedSegment `json:"segments"`
}

// AlignedSegment preserves the transcription segment fields and adds the
// per-word timing breakdown.
type AlignedSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
	Words []Word  `json:"words"`
}

// Word is a single aligned token. Start and End are pointers because aligners
// emit null timings for tokens they could not place; such entries are dropped
// during assembly rather than treated as errors. Speaker may be pre-populated
// by an upstream best-effort assignment, or empty.
type Word struct {
	Start   *float64 `json:"start"`
	End     *float64 `json:"end"`
	Word    string   `json:"word"`
	Speaker string   `json:"speaker,omitempty"`
}

// Utterance is the output unit: a maximal run of temporally adjacent,
// same-speaker words merged into one readable block.
type Utterance struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`
	Text    string  `json:"text"`
}
