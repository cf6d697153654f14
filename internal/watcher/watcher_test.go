package watcher

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"docsorter/internal/inbox"
)

func writeFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("%PDF-1.4 test"), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func receive(t *testing.T, ch <-chan inbox.FileCandidate, timeout time.Duration) (inbox.FileCandidate, bool) {
	t.Helper()
	select {
	case cand, ok := <-ch:
		return cand, ok
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for candidate")
		return inbox.FileCandidate{}, false
	}
}

func expectNothing(t *testing.T, ch <-chan inbox.FileCandidate, wait time.Duration) {
	t.Helper()
	select {
	case cand, ok := <-ch:
		if ok {
			t.Fatalf("unexpected candidate %s (%s)", cand.Path, cand.Source)
		}
	case <-time.After(wait):
	}
}

func waitForState(t *testing.T, w *Watcher, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for w.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("state %s, want %s", w.State(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCatchUpScanSortedAndFiltered(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.pdf")
	writeFile(t, dir, "a.PNG")
	writeFile(t, dir, ".hidden.pdf")
	writeFile(t, dir, "notes.txt")
	writeFile(t, dir, "c.pdf.icloud")
	if err := os.Mkdir(filepath.Join(dir, "sub.pdf"), 0o755); err != nil {
		t.Fatal(err)
	}

	w := New(Config{Dir: dir, QueueSize: 8, CatchUpOnly: true}, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var names []string
	for cand := range w.Candidates() {
		if cand.Source != inbox.SourceCatchUp {
			t.Fatalf("unexpected source %s", cand.Source)
		}
		if cand.CorrelationID == "" {
			t.Fatal("missing correlation id")
		}
		names = append(names, filepath.Base(cand.Path))
	}
	if len(names) != 2 || names[0] != "a.PNG" || names[1] != "b.pdf" {
		t.Fatalf("unexpected catch-up order %v", names)
	}
	if w.State() != StateStopped {
		t.Fatalf("expected stopped, got %s", w.State())
	}
}

func TestCatchUpMissingDirIsNotFatal(t *testing.T) {
	w := New(Config{Dir: filepath.Join(t.TempDir(), "missing"), CatchUpOnly: true}, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, ok := <-w.Candidates(); ok {
		t.Fatal("expected no candidates")
	}
}

func TestStartFailsWhenWatchCannotBeEstablished(t *testing.T) {
	w := New(Config{Dir: filepath.Join(t.TempDir(), "missing")}, nil)
	if err := w.Start(context.Background()); err == nil {
		t.Fatal("expected start-up error")
	}
	if w.State() != StateIdle {
		t.Fatalf("expected idle, got %s", w.State())
	}
}

func TestLiveEventEmittedAfterStabilization(t *testing.T) {
	dir := t.TempDir()
	w := New(Config{Dir: dir, QueueSize: 4, StabilizationDelay: 50 * time.Millisecond}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForState(t, w, StateLiveWatching)

	created := time.Now()
	path := writeFile(t, dir, "scan1.pdf")
	writeFile(t, dir, "ignored.docx")

	cand, ok := receive(t, w.Candidates(), 3*time.Second)
	if !ok {
		t.Fatal("channel closed early")
	}
	if cand.Path != path || cand.Source != inbox.SourceLiveEvent {
		t.Fatalf("unexpected candidate %+v", cand)
	}
	if elapsed := time.Since(created); elapsed < 50*time.Millisecond {
		t.Fatalf("candidate released before stabilization delay (%s)", elapsed)
	}
	expectNothing(t, w.Candidates(), 200*time.Millisecond)

	w.Stop()
	if w.State() != StateStopped {
		t.Fatalf("expected stopped, got %s", w.State())
	}
}

func TestCatchUpFileNotReemittedByLiveEvent(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "existing.pdf")

	w := New(Config{Dir: dir, QueueSize: 4, StabilizationDelay: 10 * time.Millisecond}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cand, _ := receive(t, w.Candidates(), 2*time.Second)
	if cand.Path != path || cand.Source != inbox.SourceCatchUp {
		t.Fatalf("unexpected candidate %+v", cand)
	}
	waitForState(t, w, StateLiveWatching)

	// A create event that raced the scan for the same file.
	w.handleEvent(ctx, fsnotify.Event{Name: path, Op: fsnotify.Create})
	expectNothing(t, w.Candidates(), 150*time.Millisecond)

	w.Stop()
}

func TestCatchUpFileMovedOutAndBackIsReemitted(t *testing.T) {
	dir := t.TempDir()
	parked := t.TempDir()
	path := writeFile(t, dir, "failed.pdf")

	w := New(Config{Dir: dir, QueueSize: 4, StabilizationDelay: 20 * time.Millisecond}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if cand, _ := receive(t, w.Candidates(), 2*time.Second); cand.Source != inbox.SourceCatchUp {
		t.Fatalf("unexpected candidate %+v", cand)
	}
	waitForState(t, w, StateLiveWatching)

	// Same inode, so only the intervening rename tells the watcher it is new work.
	out := filepath.Join(parked, "failed.pdf")
	if err := os.Rename(path, out); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(out, path); err != nil {
		t.Fatal(err)
	}

	cand, ok := receive(t, w.Candidates(), 3*time.Second)
	if !ok || cand.Path != path || cand.Source != inbox.SourceLiveEvent {
		t.Fatalf("re-triggered file not emitted: %+v", cand)
	}
	w.Stop()
}

func TestNewFileReusingDeletedCatchUpNameIsEmitted(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "scan.pdf")

	w := New(Config{Dir: dir, QueueSize: 4, StabilizationDelay: 20 * time.Millisecond}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if cand, _ := receive(t, w.Candidates(), 2*time.Second); cand.Source != inbox.SourceCatchUp {
		t.Fatalf("unexpected candidate %+v", cand)
	}
	waitForState(t, w, StateLiveWatching)

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("%PDF-1.4 second scan"), 0o644); err != nil {
		t.Fatal(err)
	}

	cand, ok := receive(t, w.Candidates(), 3*time.Second)
	if !ok || cand.Path != path || cand.Source != inbox.SourceLiveEvent {
		t.Fatalf("new document not emitted: %+v", cand)
	}
	w.mu.Lock()
	_, tracked := w.scanned[path]
	w.mu.Unlock()
	if tracked {
		t.Fatal("catch-up record should be cleared once the file is gone")
	}
	w.Stop()
}

func TestRepeatedWritesRestartStabilization(t *testing.T) {
	dir := t.TempDir()
	w := New(Config{Dir: dir, QueueSize: 4, StabilizationDelay: 100 * time.Millisecond}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForState(t, w, StateLiveWatching)

	path := filepath.Join(dir, "growing.pdf")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		time.Sleep(40 * time.Millisecond)
		if _, err := f.WriteString("chunk "); err != nil {
			t.Fatal(err)
		}
	}
	lastWrite := time.Now()
	_ = f.Close()

	cand, _ := receive(t, w.Candidates(), 3*time.Second)
	if cand.Path != path {
		t.Fatalf("unexpected candidate %+v", cand)
	}
	if cand.DiscoveredAt.Sub(lastWrite) < 80*time.Millisecond {
		t.Fatalf("candidate released %s after last write", cand.DiscoveredAt.Sub(lastWrite))
	}
	expectNothing(t, w.Candidates(), 250*time.Millisecond)
	w.Stop()
}

func TestStopAbandonsPendingStabilization(t *testing.T) {
	dir := t.TempDir()
	w := New(Config{Dir: dir, QueueSize: 4, StabilizationDelay: time.Hour}, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForState(t, w, StateLiveWatching)
	path := writeFile(t, dir, "late.pdf")

	deadline := time.Now().Add(2 * time.Second)
	for {
		w.mu.Lock()
		_, armed := w.pending[path]
		w.mu.Unlock()
		if armed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("stabilization timer never armed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked on pending stabilization")
	}
	if _, ok := <-w.Candidates(); ok {
		t.Fatal("expected closed channel")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("abandoned file should remain: %v", err)
	}
}

func TestContextCancelStopsWatcher(t *testing.T) {
	dir := t.TempDir()
	w := New(Config{Dir: dir, QueueSize: 1}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForState(t, w, StateLiveWatching)
	cancel()
	w.Wait()
	if w.State() != StateStopped {
		t.Fatalf("expected stopped, got %s", w.State())
	}
}

func TestStartTwice(t *testing.T) {
	w := New(Config{Dir: t.TempDir(), CatchUpOnly: true}, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := w.Start(context.Background()); err == nil {
		t.Fatal("expected error on second start")
	}
	w.Wait()
}

func TestCancelReportsCandidatesLeftInQueue(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.pdf")
	writeFile(t, dir, "b.pdf")
	writeFile(t, dir, "c.pdf")

	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	w := New(Config{Dir: dir, QueueSize: 2, CatchUpOnly: true}, logger)
	ctx, cancel := context.WithCancel(context.Background())
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(w.Candidates()) < 2 {
		if time.Now().After(deadline) {
			t.Fatal("catch-up never filled the queue")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	w.Wait()

	if _, ok := <-w.Candidates(); ok {
		t.Fatal("expected drained, closed channel")
	}
	out := logs.String()
	if got := strings.Count(out, "candidate_abandoned"); got != 2 {
		t.Fatalf("expected 2 abandoned warnings, got %d\n%s", got, out)
	}
	for _, name := range []string{"a.pdf", "b.pdf"} {
		if !strings.Contains(out, filepath.Join(dir, name)) {
			t.Fatalf("no warning for %s\n%s", name, out)
		}
	}
	if !strings.Contains(out, "catch-up scan interrupted") {
		t.Fatalf("expected interrupted scan log\n%s", out)
	}
}
