package recording

import (
	"context"
	"testing"
)

func TestBatchCompletesSession(t *testing.T) {
	e := newEnv(t)
	id := e.newSession(t)
	e.upload(t, id, 0, "Buongiorno")
	e.upload(t, id, 2, "come stai")
	e.upload(t, id, 1, "a tutti")

	res, err := e.batch.RunBatch(context.Background(), id)
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if res.Status != SessionStatusCompleted {
		t.Fatalf("expected completed, got %s", res.Status)
	}
	if res.ProcessedCount != 3 || len(res.FailedSegments) != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.CombinedText != "Buongiorno a tutti come stai" {
		t.Fatalf("expected ascending-order assembly, got %q", res.CombinedText)
	}

	sess, _ := e.reg.Get(id)
	if sess.Status != SessionStatusCompleted || sess.CompletedAt == nil {
		t.Fatalf("session not finalized: %+v", sess)
	}
	if sess.CombinedText != res.CombinedText {
		t.Fatal("combined text must be stored on the session")
	}
}

func TestBatchBoundsWorkerPool(t *testing.T) {
	e := newEnv(t)
	id := e.newSession(t)
	for n := 0; n < 8; n++ {
		e.upload(t, id, n, "text")
	}

	if _, err := e.batch.RunBatch(context.Background(), id); err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if e.stt.maxInFlight > 3 {
		t.Fatalf("worker pool width exceeded: peak %d concurrent transcriptions", e.stt.maxInFlight)
	}
	if e.stt.calls != 8 {
		t.Fatalf("expected 8 transcriptions, got %d", e.stt.calls)
	}
}

func TestBatchIsolatesFailuresAndKeepsSuccesses(t *testing.T) {
	e := newEnv(t)
	id := e.newSession(t)
	e.upload(t, id, 0, "keep me")
	e.upload(t, id, 1, "doomed")
	e.stt.failNumbers[1] = true

	res, err := e.batch.RunBatch(context.Background(), id)
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if res.Status != SessionStatusPartialFailure {
		t.Fatalf("expected partial_failure, got %s", res.Status)
	}
	if res.ProcessedCount != 1 {
		t.Fatalf("success must be kept, got %d processed", res.ProcessedCount)
	}
	if len(res.FailedSegments) != 1 || res.FailedSegments[0] != 1 {
		t.Fatalf("unexpected failed segments: %v", res.FailedSegments)
	}

	seg, _ := e.reg.GetSegment(id, 0)
	if seg.Transcription != "keep me" {
		t.Fatal("sibling segment's transcript must survive the failure")
	}
}

func TestBatchRetryCeilingExcludesExhaustedSegments(t *testing.T) {
	e := newEnv(t)
	id := e.newSession(t)
	e.upload(t, id, 0, "fine")
	e.upload(t, id, 1, "never works")
	e.stt.failNumbers[1] = true

	// Three passes exhaust the failing segment's attempts.
	for pass := 1; pass <= 3; pass++ {
		if _, err := e.batch.RunBatch(context.Background(), id); err != nil {
			t.Fatalf("RunBatch pass %d: %v", pass, err)
		}
		seg, _ := e.reg.GetSegment(id, 1)
		if seg.Attempts != pass {
			t.Fatalf("expected %d attempts after pass %d, got %d", pass, pass, seg.Attempts)
		}
	}

	pending, err := e.reg.UnprocessedSegments(id)
	if err != nil {
		t.Fatalf("UnprocessedSegments: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("exhausted segment must leave the unprocessed listing, got %v", pending)
	}

	// A fresh pass runs nothing but still reports the permanent failure.
	res, err := e.batch.RunBatch(context.Background(), id)
	if err != nil {
		t.Fatalf("final RunBatch: %v", err)
	}
	if res.Status != SessionStatusPartialFailure {
		t.Fatalf("expected partial_failure, got %s", res.Status)
	}
	if len(res.FailedSegments) != 1 || res.FailedSegments[0] != 1 {
		t.Fatalf("exhausted segment must be reported as failed: %v", res.FailedSegments)
	}
	if res.ProcessedCount != 0 {
		t.Fatalf("nothing should have been processed, got %d", res.ProcessedCount)
	}
	seg, _ := e.reg.GetSegment(id, 0)
	if seg.Transcription != "fine" {
		t.Fatal("previous successes must be retained across passes")
	}
}

func TestBatchReuploadResetsRetryBudget(t *testing.T) {
	e := newEnv(t)
	id := e.newSession(t)
	e.upload(t, id, 0, "flaky")
	e.stt.failNumbers[0] = true

	for pass := 0; pass < 3; pass++ {
		if _, err := e.batch.RunBatch(context.Background(), id); err != nil {
			t.Fatalf("RunBatch: %v", err)
		}
	}
	if pending, _ := e.reg.UnprocessedSegments(id); len(pending) != 0 {
		t.Fatalf("expected exhausted segment, got pending %v", pending)
	}

	// Re-uploading the segment makes it processable again.
	e.stt.failNumbers[0] = false
	e.upload(t, id, 0, "fixed")
	res, err := e.batch.RunBatch(context.Background(), id)
	if err != nil {
		t.Fatalf("RunBatch after re-upload: %v", err)
	}
	if res.Status != SessionStatusCompleted {
		t.Fatalf("expected completed, got %s", res.Status)
	}
	if res.CombinedText != "fixed" {
		t.Fatalf("unexpected combined text %q", res.CombinedText)
	}
}
