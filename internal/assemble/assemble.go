package assemble

import (
	"errors"
	"sort"
	"strings"
)

// DefaultGapThreshold is the maximum silence, in seconds, permitted between
// two same-speaker intervals for them to merge into one utterance.
const DefaultGapThreshold = 0.8

// ErrNoSegments reports a structural contract violation: the alignment payload
// itself carries no segments collection. Unlike noisy per-record data, this
// indicates an upstream interface mismatch and is surfaced to the caller.
var ErrNoSegments = errors.New("alignment result has no segments collection")

// word is a validated, flattened word entry ready for grouping.
type word struct {
	start   float64
	end     float64
	text    string
	speaker string
}

// Assemble reconciles the aligned word stream with diarization output into a
// chronological utterance sequence. diarization may be any shape accepted by
// NormalizeTurns; gapThreshold <= 0 selects DefaultGapThreshold.
//
// The input structures are never mutated: speaker backfill happens on private
// copies of the word entries.
func Assemble(alignment *AlignmentResult, diarization any, gapThreshold float64) ([]Utterance, error) {
	if alignment == nil || alignment.Segments == nil {
		return nil, ErrNoSegments
	}
	if gapThreshold <= 0 {
		gapThreshold = DefaultGapThreshold
	}

	resolver := NewResolver(NormalizeTurns(diarization))
	words := collectWords(alignment)

	utterances := buildUtterances(words, resolver, gapThreshold)
	return mergeAdjacent(utterances, gapThreshold), nil
}

// collectWords flattens all well-formed word entries from all segments into a
// single stream sorted by start time. Malformed entries (missing or inverted
// times, empty text) are dropped. A segment with text but no usable words at
// all contributes one pseudo-word spanning the whole segment, so its content
// survives into the transcript.
func collectWords(alignment *AlignmentResult) []word {
	var words []word
	for _, seg := range alignment.Segments {
		kept := 0
		for _, w := range seg.Words {
			if w.Start == nil || w.End == nil || w.Word == "" {
				continue
			}
			start, end := *w.Start, *w.End
			if !isFinite(start) || !isFinite(end) || end <= start {
				continue
			}
			words = append(words, word{start: start, end: end, text: w.Word, speaker: w.Speaker})
			kept++
		}
		if kept == 0 {
			if text := strings.TrimSpace(seg.Text); text != "" && isFinite(seg.Start) && isFinite(seg.End) && seg.End > seg.Start {
				words = append(words, word{start: seg.Start, end: seg.End, text: text})
			}
		}
	}

	sort.SliceStable(words, func(i, j int) bool { return words[i].start < words[j].start })
	return words
}

// buildUtterances is the first pass: walk the sorted word stream, fill in
// missing speaker labels, and group consecutive same-speaker, close-in-time
// words into utterances.
func buildUtterances(words []word, resolver *Resolver, gapThreshold float64) []Utterance {
	var (
		utterances []Utterance
		runSpeaker string
		run        []word
	)

	flush := func() {
		if len(run) == 0 {
			return
		}
		text := ""
		for _, w := range run {
			text = JoinText(text, w.text)
		}
		utterances = append(utterances, Utterance{
			Start:   run[0].start,
			End:     run[len(run)-1].end,
			Speaker: runSpeaker,
			Text:    strings.TrimSpace(text),
		})
		run = run[:0]
	}

	for _, w := range words {
		label := w.speaker
		if label == "" {
			// Backfill order: overlapping diarization turn, then the
			// previous word in the current run, then UNKNOWN.
			if resolved, ok := resolver.Resolve(w.start, w.end); ok {
				label = resolved
			} else if len(run) > 0 && w.start-run[len(run)-1].end <= gapThreshold {
				label = runSpeaker
			} else {
				label = UnknownSpeaker
			}
		}

		if len(run) == 0 {
			runSpeaker = label
			run = append(run, w)
			continue
		}

		gap := w.start - run[len(run)-1].end
		if label == runSpeaker && gap <= gapThreshold {
			run = append(run, w)
			continue
		}

		flush()
		runSpeaker = label
		run = append(run, w)
	}
	flush()

	return utterances
}

// mergeAdjacent is the second pass: merge neighboring utterances that share a
// speaker across a small gap. The first pass can leave two adjacent one-word
// utterances of the same speaker unmerged when their labels arrived through
// different fallback paths; this pass guarantees no two chronologically
// adjacent, same-speaker, close-gap utterances survive.
func mergeAdjacent(utterances []Utterance, gapThreshold float64) []Utterance {
	if len(utterances) == 0 {
		return nil
	}

	merged := make([]Utterance, 0, len(utterances))
	for _, u := range utterances {
		if len(merged) == 0 {
			merged = append(merged, u)
			continue
		}

		last := &merged[len(merged)-1]
		gap := max(0, u.Start-last.End)
		if u.Speaker == last.Speaker && gap <= gapThreshold {
			last.End = max(last.End, u.End)
			last.Text = JoinText(last.Text, u.Text)
		} else {
			merged = append(merged, u)
		}
	}
	return merged
}
