package audio

import (
	"testing"
	"time"

	"kani-tts-server/internal/platform/errors"
	"kani-tts-server/internal/platform/testutil"
)

func TestProbeWAV(t *testing.T) {
	data := testutil.WAV(t, 2.0, 16000)

	info, err := Probe(data)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if info.Container != "wav" {
		t.Fatalf("container = %s", info.Container)
	}
	if diff := info.Duration - 2*time.Second; diff < -50*time.Millisecond || diff > 50*time.Millisecond {
		t.Fatalf("duration = %s", info.Duration)
	}
}

func TestProbeRejectsTinyInput(t *testing.T) {
	_, err := Probe([]byte("RIFF"))
	if !errors.IsKind(err, errors.KindInvalidInput) {
		t.Fatalf("expected invalid_input, got %v", err)
	}
}

func TestProbeRejectsUnknownContainer(t *testing.T) {
	_, err := Probe([]byte("OggS\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00"))
	if !errors.IsKind(err, errors.KindInvalidInput) {
		t.Fatalf("expected invalid_input, got %v", err)
	}
}

func TestProbeRejectsTruncatedWAV(t *testing.T) {
	data := testutil.WAV(t, 1.0, 8000)
	_, err := Probe(data[:20])
	if !errors.IsKind(err, errors.KindInvalidInput) {
		t.Fatalf("expected invalid_input, got %v", err)
	}
}

func TestConcatWAVSumsDurations(t *testing.T) {
	a := testutil.WAV(t, 1.0, 16000)
	b := testutil.WAV(t, 2.0, 16000)

	joined, err := ConcatWAV([][]byte{a, b})
	if err != nil {
		t.Fatalf("concat: %v", err)
	}
	info, err := Probe(joined)
	if err != nil {
		t.Fatalf("probe joined: %v", err)
	}
	if diff := info.Duration - 3*time.Second; diff < -100*time.Millisecond || diff > 100*time.Millisecond {
		t.Fatalf("joined duration = %s", info.Duration)
	}
}

func TestConcatWAVSingleSegmentPassesThrough(t *testing.T) {
	a := testutil.WAV(t, 1.0, 16000)
	joined, err := ConcatWAV([][]byte{a})
	if err != nil {
		t.Fatalf("concat: %v", err)
	}
	if len(joined) != len(a) {
		t.Fatalf("single segment must pass through unchanged")
	}
}

func TestConcatWAVRejectsMixedRates(t *testing.T) {
	a := testutil.WAV(t, 1.0, 16000)
	b := testutil.WAV(t, 1.0, 8000)
	if _, err := ConcatWAV([][]byte{a, b}); !errors.IsKind(err, errors.KindInvalidInput) {
		t.Fatalf("expected invalid_input, got %v", err)
	}
}

func TestConcatWAVRejectsEmptyInput(t *testing.T) {
	if _, err := ConcatWAV(nil); !errors.IsKind(err, errors.KindInvalidInput) {
		t.Fatalf("expected invalid_input, got %v", err)
	}
}
