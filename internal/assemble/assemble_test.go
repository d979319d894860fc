package assemble

import (
	"errors"
	"testing"
)

func f(v float64) *float64 { return &v }

func alignmentOf(words ...Word) *AlignmentResult {
	return &AlignmentResult{Segments: []AlignedSegment{{
		Start: 0, End: 10, Words: words,
	}}}
}

func diarizationOf(recs ...TurnRecord) *TurnPayload {
	return &TurnPayload{Segments: recs}
}

func TestAssemble_EndToEnd(t *testing.T) {
	alignment := alignmentOf(
		Word{Start: f(0.0), End: f(0.5), Word: "Hi"},
		Word{Start: f(0.6), End: f(1.0), Word: "there"},
	)
	diarization := diarizationOf(TurnRecord{Start: 0.0, End: 1.0, Speaker: "SPEAKER_A"})

	utterances, err := Assemble(alignment, diarization, 0.8)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(utterances) != 1 {
		t.Fatalf("expected 1 utterance, got %d: %+v", len(utterances), utterances)
	}
	u := utterances[0]
	if u.Start != 0.0 || u.End != 1.0 {
		t.Errorf("bounds = (%f, %f), want (0, 1)", u.Start, u.End)
	}
	if u.Speaker != "SPEAKER_A" {
		t.Errorf("speaker = %q, want SPEAKER_A", u.Speaker)
	}
	if u.Text != "Hi there" {
		t.Errorf("text = %q, want %q", u.Text, "Hi there")
	}

	if line := FormatTranscript(utterances); line != "[00:00:00] SPEAKER_A: Hi there" {
		t.Errorf("formatted = %q", line)
	}
}

func TestAssemble_SpeakerChangeSplits(t *testing.T) {
	alignment := alignmentOf(
		Word{Start: f(0.0), End: f(0.5), Word: "Hi"},
		Word{Start: f(0.6), End: f(1.0), Word: "there"},
	)
	diarization := diarizationOf(
		TurnRecord{Start: 0.0, End: 0.5, Speaker: "A"},
		TurnRecord{Start: 0.6, End: 1.0, Speaker: "B"},
	)

	utterances, err := Assemble(alignment, diarization, 0.05)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(utterances) != 2 {
		t.Fatalf("expected 2 utterances, got %d: %+v", len(utterances), utterances)
	}
	if utterances[0].Speaker != "A" || utterances[1].Speaker != "B" {
		t.Errorf("speakers = %q, %q", utterances[0].Speaker, utterances[1].Speaker)
	}
}

func TestAssemble_GapSplitsSameSpeaker(t *testing.T) {
	alignment := alignmentOf(
		Word{Start: f(0.0), End: f(0.5), Word: "one"},
		Word{Start: f(3.0), End: f(3.5), Word: "two"},
	)
	diarization := diarizationOf(TurnRecord{Start: 0.0, End: 4.0, Speaker: "A"})

	utterances, err := Assemble(alignment, diarization, 0.8)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(utterances) != 2 {
		t.Fatalf("expected 2 utterances across the 2.5s gap, got %d", len(utterances))
	}
}

func TestAssemble_MalformedWordDropped(t *testing.T) {
	alignment := alignmentOf(
		Word{Start: f(0.0), End: f(0.5), Word: "Hi"},
		Word{Start: nil, End: f(0.55), Word: "garbage"},
		Word{Start: f(0.6), End: f(1.0), Word: "there"},
	)
	diarization := diarizationOf(TurnRecord{Start: 0.0, End: 1.0, Speaker: "A"})

	utterances, err := Assemble(alignment, diarization, 0.8)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(utterances) != 1 {
		t.Fatalf("expected 1 utterance, got %d", len(utterances))
	}
	if utterances[0].Text != "Hi there" {
		t.Errorf("text = %q, want %q (bad word dropped, neighbors still merge)", utterances[0].Text, "Hi there")
	}
}

func TestAssemble_PrepopulatedSpeakerWins(t *testing.T) {
	// A word already labeled upstream keeps its label even when diarization
	// disagrees.
	alignment := alignmentOf(
		Word{Start: f(0.0), End: f(0.5), Word: "mine", Speaker: "B"},
	)
	diarization := diarizationOf(TurnRecord{Start: 0.0, End: 1.0, Speaker: "A"})

	utterances, err := Assemble(alignment, diarization, 0.8)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if utterances[0].Speaker != "B" {
		t.Errorf("speaker = %q, want B", utterances[0].Speaker)
	}
}

func TestAssemble_PreviousWordFallback(t *testing.T) {
	// Second word has no diarization coverage; it inherits the run's label
	// because the gap is small.
	alignment := alignmentOf(
		Word{Start: f(0.0), End: f(0.5), Word: "covered"},
		Word{Start: f(10.0), End: f(10.5), Word: "stray"},
	)
	diarization := diarizationOf(TurnRecord{Start: 0.0, End: 0.5, Speaker: "A"})

	utterances, err := Assemble(alignment, diarization, 0.8)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(utterances) != 2 {
		t.Fatalf("expected 2 utterances, got %d", len(utterances))
	}
	if utterances[1].Speaker != UnknownSpeaker {
		t.Errorf("stray word far from the run: speaker = %q, want %q", utterances[1].Speaker, UnknownSpeaker)
	}

	// Same stray word close to the run inherits the label instead.
	alignment = alignmentOf(
		Word{Start: f(0.0), End: f(0.5), Word: "covered"},
		Word{Start: f(0.9), End: f(1.2), Word: "stray"},
	)
	utterances, err = Assemble(alignment, diarization, 0.8)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(utterances) != 1 {
		t.Fatalf("expected 1 utterance, got %d: %+v", len(utterances), utterances)
	}
	if utterances[0].Speaker != "A" {
		t.Errorf("speaker = %q, want A (inherited from previous word)", utterances[0].Speaker)
	}
}

func TestAssemble_NoTurnsLabelsUnknown(t *testing.T) {
	alignment := alignmentOf(
		Word{Start: f(0.0), End: f(0.5), Word: "Hi"},
		Word{Start: f(0.6), End: f(1.0), Word: "there"},
	)

	utterances, err := Assemble(alignment, nil, 0.8)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(utterances) != 1 {
		t.Fatalf("expected 1 utterance, got %d", len(utterances))
	}
	if utterances[0].Speaker != UnknownSpeaker {
		t.Errorf("speaker = %q, want %q", utterances[0].Speaker, UnknownSpeaker)
	}
}

func TestAssemble_SecondPassMergesFallbackRuns(t *testing.T) {
	// Words labeled through different paths (overlap vs. prepopulated) end up
	// in one utterance when speaker and gap agree.
	alignment := alignmentOf(
		Word{Start: f(0.0), End: f(0.5), Word: "one"},
		Word{Start: f(0.6), End: f(1.0), Word: "two", Speaker: "A"},
	)
	diarization := diarizationOf(TurnRecord{Start: 0.0, End: 0.5, Speaker: "A"})

	utterances, err := Assemble(alignment, diarization, 0.8)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(utterances) != 1 {
		t.Fatalf("expected 1 merged utterance, got %d: %+v", len(utterances), utterances)
	}

	// Invariant: no two adjacent utterances share a speaker within the gap.
	for i := 1; i < len(utterances); i++ {
		prev, next := utterances[i-1], utterances[i]
		if next.Start < prev.Start {
			t.Errorf("utterances not sorted by start: %+v", utterances)
		}
		if prev.Speaker == next.Speaker && next.Start-prev.End <= 0.8 {
			t.Errorf("adjacent same-speaker utterances survived: %+v, %+v", prev, next)
		}
	}
}

func TestAssemble_WordlessSegmentFallsBackToSegmentText(t *testing.T) {
	alignment := &AlignmentResult{Segments: []AlignedSegment{{
		Start: 1.0, End: 3.0, Text: "  unalignable mumble  ",
	}}}
	diarization := diarizationOf(TurnRecord{Start: 0.0, End: 5.0, Speaker: "A"})

	utterances, err := Assemble(alignment, diarization, 0.8)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(utterances) != 1 {
		t.Fatalf("expected 1 utterance, got %d", len(utterances))
	}
	if utterances[0].Text != "unalignable mumble" || utterances[0].Speaker != "A" {
		t.Errorf("got %+v", utterances[0])
	}
}

func TestAssemble_StructuralViolation(t *testing.T) {
	if _, err := Assemble(nil, nil, 0.8); !errors.Is(err, ErrNoSegments) {
		t.Errorf("nil alignment: err = %v, want ErrNoSegments", err)
	}
	if _, err := Assemble(&AlignmentResult{}, nil, 0.8); !errors.Is(err, ErrNoSegments) {
		t.Errorf("nil segments: err = %v, want ErrNoSegments", err)
	}
}

func TestAssemble_EmptyInput(t *testing.T) {
	utterances, err := Assemble(&AlignmentResult{Segments: []AlignedSegment{}}, nil, 0.8)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(utterances) != 0 {
		t.Errorf("expected no utterances, got %d", len(utterances))
	}
	if out := FormatTranscript(utterances); out != "" {
		t.Errorf("formatter on empty input = %q, want empty string", out)
	}
}

func TestAssemble_DoesNotMutateInput(t *testing.T) {
	w := Word{Start: f(0.0), End: f(0.5), Word: "Hi"}
	alignment := alignmentOf(w)
	diarization := diarizationOf(TurnRecord{Start: 0.0, End: 1.0, Speaker: "A"})

	if _, err := Assemble(alignment, diarization, 0.8); err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if alignment.Segments[0].Words[0].Speaker != "" {
		t.Error("input word entry was mutated with a backfilled speaker")
	}
}

func TestAssemble_UnsortedWordsAreOrdered(t *testing.T) {
	alignment := &AlignmentResult{Segments: []AlignedSegment{
		{Start: 5, End: 6, Words: []Word{{Start: f(5.0), End: f(5.5), Word: "later"}}},
		{Start: 0, End: 1, Words: []Word{{Start: f(0.0), End: f(0.5), Word: "earlier"}}},
	}}
	diarization := diarizationOf(TurnRecord{Start: 0.0, End: 10.0, Speaker: "A"})

	utterances, err := Assemble(alignment, diarization, 0.8)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	for i := 1; i < len(utterances); i++ {
		if utterances[i].Start < utterances[i-1].Start {
			t.Fatalf("utterances out of order: %+v", utterances)
		}
	}
	if utterances[0].Text != "earlier" {
		t.Errorf("first utterance = %+v, want the earlier word", utterances[0])
	}
}
