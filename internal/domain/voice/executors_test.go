package voice

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"kani-tts-server/internal/domain/audio"
	"kani-tts-server/internal/domain/job"
	"kani-tts-server/internal/domain/synth"
	"kani-tts-server/internal/platform/errors"
	"kani-tts-server/internal/platform/testutil"
)

func newJobFixture(t *testing.T) (*fixture, *job.Orchestrator) {
	t.Helper()

	f := newFixture(t)
	store, err := job.NewStore(job.DriverMemory, job.Dependencies{})
	if err != nil {
		t.Fatalf("job store: %v", err)
	}
	o := job.NewOrchestrator(job.Config{Mode: job.ModeInline}, store, testutil.Logger(t))

	NewExecutors(f.service, f.gateway, f.artifacts, NarrateDefaults{
		MaxTotalChars:   5000,
		MaxChunks:       15,
		DefaultMaxChars: 500,
	}, synth.Params{Temperature: 0.65, TopP: 0.8, RepetitionPenalty: 1.15}).Register(o)

	return f, o
}

func TestNarrateJobRendersAllChunks(t *testing.T) {
	ctx := context.Background()
	f, o := newJobFixture(t)

	v, err := f.service.CreateFromClone(ctx, "alice", CloneRequest{
		Name:   "narrator",
		Sample: testutil.WAV(t, 5.0, 16000),
	})
	if err != nil {
		t.Fatalf("clone: %v", err)
	}

	// Three ~500-char sentences, default 500-char chunks: three segments.
	sentence := strings.Repeat("word ", 99) + "end."
	text := sentence + " " + sentence + " " + sentence

	j, err := o.Submit(ctx, JobKindNarrate, "alice", NarratePayload{
		VoiceID: v.ID,
		Text:    text,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if j.State != job.StateSucceeded {
		t.Fatalf("state = %s, detail %v", j.State, j.ErrorDetail)
	}
	if f.gateway.synthCalls != 3 {
		t.Fatalf("engine called %d times, want 3", f.gateway.synthCalls)
	}

	ref, err := o.FetchResult(ctx, j.ID)
	if err != nil {
		t.Fatalf("fetch result: %v", err)
	}
	if !strings.HasPrefix(ref, "narrate/") || !strings.HasSuffix(ref, ".wav") {
		t.Fatalf("ref = %q", ref)
	}

	data, err := f.artifacts.Get(ctx, ref)
	if err != nil {
		t.Fatalf("artifact: %v", err)
	}
	info, err := audio.Probe(data)
	if err != nil {
		t.Fatalf("probe result: %v", err)
	}
	// Three 0.5s segments joined.
	if diff := info.Duration - 1500*time.Millisecond; diff < -100*time.Millisecond || diff > 100*time.Millisecond {
		t.Fatalf("duration = %s", info.Duration)
	}
}

func TestNarrateJobFailsOnOversizedText(t *testing.T) {
	ctx := context.Background()
	f, o := newJobFixture(t)

	v, err := f.service.CreateFromClone(ctx, "alice", CloneRequest{
		Name:   "narrator",
		Sample: testutil.WAV(t, 5.0, 16000),
	})
	if err != nil {
		t.Fatalf("clone: %v", err)
	}

	j, err := o.Submit(ctx, JobKindNarrate, "alice", NarratePayload{
		VoiceID: v.ID,
		Text:    strings.Repeat("a", 5001),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if j.State != job.StateFailed {
		t.Fatalf("state = %s", j.State)
	}
	if f.gateway.synthCalls != 0 {
		t.Fatalf("engine called before validation")
	}
}

func TestNarrateJobRefusesTakenDownVoice(t *testing.T) {
	ctx := context.Background()
	f, o := newJobFixture(t)

	v, err := f.service.CreateFromClone(ctx, "alice", CloneRequest{
		Name:   "flagged",
		Sample: testutil.WAV(t, 5.0, 16000),
	})
	if err != nil {
		t.Fatalf("clone: %v", err)
	}
	if err := f.service.TakeDown(ctx, "admin", v.ID); err != nil {
		t.Fatalf("takedown: %v", err)
	}

	j, err := o.Submit(ctx, JobKindNarrate, "alice", NarratePayload{
		VoiceID: v.ID,
		Text:    "A short line to narrate.",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if j.State != job.StateFailed {
		t.Fatalf("state = %s", j.State)
	}
	if _, err := o.FetchResult(ctx, j.ID); !errors.IsKind(err, errors.KindUpstream) {
		t.Fatalf("expected failed result, got %v", err)
	}
}

func TestCloneJobCreatesVoice(t *testing.T) {
	ctx := context.Background()
	f, o := newJobFixture(t)

	j, err := o.Submit(ctx, JobKindClone, "alice", ClonePayload{
		Name:      "queued voice",
		SampleB64: base64.StdEncoding.EncodeToString(testutil.WAV(t, 5.0, 16000)),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if j.State != job.StateSucceeded {
		t.Fatalf("state = %s, detail %v", j.State, j.ErrorDetail)
	}

	voiceID, err := o.FetchResult(ctx, j.ID)
	if err != nil {
		t.Fatalf("fetch result: %v", err)
	}
	v, err := f.service.Get(ctx, "alice", false, voiceID)
	if err != nil {
		t.Fatalf("get created voice: %v", err)
	}
	if v.Name != "queued voice" || v.OwnerID == nil || *v.OwnerID != "alice" {
		t.Fatalf("voice = %+v", v)
	}
}

func TestCloneJobRejectsBadSampleEncoding(t *testing.T) {
	ctx := context.Background()
	_, o := newJobFixture(t)

	j, err := o.Submit(ctx, JobKindClone, "alice", ClonePayload{
		Name:      "broken",
		SampleB64: "not base64 !!!",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if j.State != job.StateFailed {
		t.Fatalf("state = %s", j.State)
	}
}
