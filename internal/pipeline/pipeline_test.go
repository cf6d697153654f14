package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"docsorter/internal/extract"
	"docsorter/internal/extract/ocr"
	"docsorter/internal/inbox"
	"docsorter/internal/organizer"
	"docsorter/internal/services"
	"docsorter/internal/services/llm"
	"docsorter/internal/watcher"
)

type stubExtractor struct {
	text string
	err  error
}

func (s stubExtractor) Extract(_ context.Context, cand inbox.FileCandidate) (extract.Content, error) {
	if s.err != nil {
		return extract.Content{}, s.err
	}
	return extract.Content{Text: s.text, Stage: extract.StageNative, Chars: len(s.text)}, nil
}

type stubClassifier struct {
	meta  llm.Metadata
	err   error
	block bool

	mu       sync.Mutex
	requests []llm.Request
	started  chan struct{}
}

func (s *stubClassifier) Classify(ctx context.Context, req llm.Request) (llm.Metadata, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	if s.started != nil {
		select {
		case s.started <- struct{}{}:
		default:
		}
	}
	if s.block {
		<-ctx.Done()
		return llm.Metadata{}, ctx.Err()
	}
	return s.meta, s.err
}

type countingOrganizer struct {
	inner *organizer.Organizer
	mu    sync.Mutex
	calls int
}

func (c *countingOrganizer) Place(ctx context.Context, src, category, filename string) (organizer.Placement, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.inner.Place(ctx, src, category, filename)
}

func newCandidate(t *testing.T, dir, name, body string) inbox.FileCandidate {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cand, err := inbox.NewCandidate(path, inbox.SourceCatchUp)
	if err != nil {
		t.Fatalf("NewCandidate: %v", err)
	}
	return cand
}

func feed(cands ...inbox.FileCandidate) <-chan inbox.FileCandidate {
	ch := make(chan inbox.FileCandidate, len(cands))
	for _, c := range cands {
		ch <- c
	}
	close(ch)
	return ch
}

func TestProcessPlacesDocument(t *testing.T) {
	inboxDir, root := t.TempDir(), t.TempDir()
	cand := newCandidate(t, inboxDir, "scan1.pdf", "pdf bytes")
	cls := &stubClassifier{meta: llm.Metadata{Category: "Invoices", Filename: "Acme_Invoice_2024"}}
	p := New(Config{Workers: 1}, stubExtractor{text: "Invoice from Acme Corp"}, cls, organizer.New(root, nil), nil)

	out := p.Process(context.Background(), cand)
	if out.Status != StatusProcessed {
		t.Fatalf("unexpected outcome %+v", out)
	}
	want := filepath.Join(root, "Invoices", "Acme_Invoice_2024.pdf")
	if out.Placement.Final != want {
		t.Fatalf("final %s, want %s", out.Placement.Final, want)
	}
	if _, err := os.Stat(cand.Path); !os.IsNotExist(err) {
		t.Fatalf("source should be gone, stat err=%v", err)
	}
	if len(cls.requests) != 1 || cls.requests[0].OriginalName != "scan1.pdf" {
		t.Fatalf("unexpected classifier requests %+v", cls.requests)
	}
	if p.Stats().Processed != 1 {
		t.Fatalf("unexpected stats %+v", p.Stats())
	}
}

func TestProcessCollisionUsesSuffix(t *testing.T) {
	inboxDir, root := t.TempDir(), t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "Invoices"), 0o755); err != nil {
		t.Fatal(err)
	}
	existing := filepath.Join(root, "Invoices", "Acme_Invoice_2024.pdf")
	if err := os.WriteFile(existing, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	cand := newCandidate(t, inboxDir, "scan2.pdf", "new")
	cls := &stubClassifier{meta: llm.Metadata{Category: "Invoices", Filename: "Acme_Invoice_2024"}}
	p := New(Config{Workers: 1}, stubExtractor{}, cls, organizer.New(root, nil), nil)

	out := p.Process(context.Background(), cand)
	if out.Placement.Final != filepath.Join(root, "Invoices", "Acme_Invoice_2024_1.pdf") {
		t.Fatalf("unexpected placement %+v", out.Placement)
	}
	if data, _ := os.ReadFile(existing); string(data) != "old" {
		t.Fatal("existing file was overwritten")
	}
}

func TestClassificationFailureLeavesFileUntouched(t *testing.T) {
	inboxDir, root := t.TempDir(), t.TempDir()
	body := "original scanned bytes \x00\x01\x02"
	cand := newCandidate(t, inboxDir, "scan.pdf", body)
	before, err := os.Stat(cand.Path)
	if err != nil {
		t.Fatal(err)
	}
	org := &countingOrganizer{inner: organizer.New(root, nil)}
	cls := &stubClassifier{err: services.Wrap(services.ErrValidation, "classify", "validate", "", errors.New("missing filename"))}
	p := New(Config{Workers: 1}, stubExtractor{text: "text"}, cls, org, nil)

	out := p.Process(context.Background(), cand)
	if out.Status != StatusFailed || out.Stage != "classify" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if org.calls != 0 {
		t.Fatal("organizer must not run after classification failure")
	}
	data, err := os.ReadFile(cand.Path)
	if err != nil || !bytes.Equal(data, []byte(body)) {
		t.Fatalf("file changed: %q %v", data, err)
	}
	after, _ := os.Stat(cand.Path)
	if !after.ModTime().Equal(before.ModTime()) {
		t.Fatal("file modification time changed")
	}
	entries, _ := os.ReadDir(root)
	if len(entries) != 0 {
		t.Fatalf("output root should be empty, has %d entries", len(entries))
	}
	if stats := p.Stats(); stats.Failed != 1 || stats.Processed != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestProcessSkipsVanishedFile(t *testing.T) {
	inboxDir := t.TempDir()
	cand := newCandidate(t, inboxDir, "gone.pdf", "x")
	if err := os.Remove(cand.Path); err != nil {
		t.Fatal(err)
	}
	cls := &stubClassifier{}
	p := New(Config{Workers: 1}, stubExtractor{}, cls, organizer.New(t.TempDir(), nil), nil)

	out := p.Process(context.Background(), cand)
	if out.Status != StatusSkipped || out.Reason != string(inbox.SkipMissing) {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if len(cls.requests) != 0 {
		t.Fatal("classifier should not run for a missing file")
	}
}

func TestProcessExtractNotFoundIsSkipped(t *testing.T) {
	cand := newCandidate(t, t.TempDir(), "a.pdf", "x")
	ex := stubExtractor{err: services.Wrap(services.ErrNotFound, "extract", "stat", cand.Path, os.ErrNotExist)}
	p := New(Config{Workers: 1}, ex, &stubClassifier{}, organizer.New(t.TempDir(), nil), nil)
	if out := p.Process(context.Background(), cand); out.Status != StatusSkipped {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestRunProcessesAllAndReportsOutcomes(t *testing.T) {
	inboxDir, root := t.TempDir(), t.TempDir()
	var cands []inbox.FileCandidate
	for i := 0; i < 6; i++ {
		cands = append(cands, newCandidate(t, inboxDir, fmt.Sprintf("doc%d.pdf", i), fmt.Sprintf("body %d", i)))
	}
	cls := &stubClassifier{meta: llm.Metadata{Category: "Letters", Filename: "Same Name"}}

	var mu sync.Mutex
	var outcomes []Outcome
	p := New(Config{Workers: 3}, stubExtractor{text: "x"}, cls, organizer.New(root, nil), nil,
		WithObserver(func(o Outcome) {
			mu.Lock()
			outcomes = append(outcomes, o)
			mu.Unlock()
		}))

	stats, err := p.Run(context.Background(), feed(cands...))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Processed != 6 || stats.Total() != 6 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if len(outcomes) != 6 {
		t.Fatalf("observer saw %d outcomes", len(outcomes))
	}

	entries, err := os.ReadDir(filepath.Join(root, "Letters"))
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	want := []string{"Same Name.pdf", "Same Name_1.pdf", "Same Name_2.pdf", "Same Name_3.pdf", "Same Name_4.pdf", "Same Name_5.pdf"}
	if strings.Join(names, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected names %v", names)
	}
}

func TestRunShutdownDefersQueuedAndCancelsAfterGrace(t *testing.T) {
	inboxDir := t.TempDir()
	ch := make(chan inbox.FileCandidate, 3)
	var paths []string
	for i := 0; i < 3; i++ {
		cand := newCandidate(t, inboxDir, fmt.Sprintf("doc%d.pdf", i), "x")
		paths = append(paths, cand.Path)
		ch <- cand
	}
	cls := &stubClassifier{block: true, started: make(chan struct{}, 1)}
	p := New(Config{Workers: 1, ShutdownGrace: 50 * time.Millisecond}, stubExtractor{text: "x"}, cls, organizer.New(t.TempDir(), nil), nil)

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan Stats, 1)
	go func() {
		stats, _ := p.Run(ctx, ch)
		result <- stats
	}()

	select {
	case <-cls.started:
	case <-time.After(2 * time.Second):
		t.Fatal("classifier never started")
	}
	cancel()

	var stats Stats
	select {
	case stats = <-result:
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after shutdown")
	}
	if stats.Failed != 1 || stats.Deferred != 2 || stats.Processed != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("file %s should remain in inbox: %v", path, err)
		}
	}
}

func TestRunWaitsForInFlightWithinGrace(t *testing.T) {
	inboxDir, root := t.TempDir(), t.TempDir()
	cand := newCandidate(t, inboxDir, "slow.pdf", "x")
	release := make(chan struct{})
	started := make(chan struct{})
	cls := classifierFunc(func(ctx context.Context, req llm.Request) (llm.Metadata, error) {
		close(started)
		<-release
		return llm.Metadata{Category: "Receipts", Filename: "Slow"}, nil
	})
	p := New(Config{Workers: 1, ShutdownGrace: 5 * time.Second}, stubExtractor{}, cls, organizer.New(root, nil), nil)

	ch := make(chan inbox.FileCandidate, 1)
	ch <- cand
	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan Stats, 1)
	go func() {
		stats, _ := p.Run(ctx, ch)
		result <- stats
	}()
	<-started
	cancel()
	time.Sleep(20 * time.Millisecond)
	close(release)

	stats := <-result
	if stats.Processed != 1 {
		t.Fatalf("in-flight document should finish within grace: %+v", stats)
	}
	if _, err := os.Stat(filepath.Join(root, "Receipts", "Slow.pdf")); err != nil {
		t.Fatalf("expected placed file: %v", err)
	}
}

type classifierFunc func(ctx context.Context, req llm.Request) (llm.Metadata, error)

func (f classifierFunc) Classify(ctx context.Context, req llm.Request) (llm.Metadata, error) {
	return f(ctx, req)
}

type stubReader struct{ text string }

func (s stubReader) ReadPages(context.Context, string) ([]extract.PageText, error) {
	return []extract.PageText{{Number: 1, Text: s.text}}, nil
}

type stubRecognizer struct{ text string }

func (s stubRecognizer) RecognizeImage(context.Context, string) (string, error) { return s.text, nil }

func (s stubRecognizer) RecognizePDF(context.Context, string) ([]ocr.Page, error) {
	return []ocr.Page{{Number: 1, Text: s.text}}, nil
}

func TestCatchUpScanToSortedOutput(t *testing.T) {
	inboxDir, root := t.TempDir(), t.TempDir()
	if err := os.WriteFile(filepath.Join(inboxDir, "scan1.pdf"), []byte("%PDF-1.4"), 0o644); err != nil {
		t.Fatal(err)
	}

	var prompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Prompt string `json:"prompt"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		prompt = req.Prompt
		_ = json.NewEncoder(w).Encode(map[string]any{
			"response": `{"category":"Invoices","filename":"Acme_Invoice_2024"}`,
			"done":     true,
		})
	}))
	defer server.Close()

	ex := extract.New(extract.Config{MinContentLength: 50},
		stubRecognizer{text: "Invoice from Acme Corp, total €120"}, nil,
		extract.WithTextReader(stubReader{text: "0123456789"}))
	cls := llm.NewClient(llm.Config{BaseURL: server.URL, Model: "llama3.2"})
	p := New(Config{Workers: 2}, ex, cls, organizer.New(root, nil), nil)

	w := watcher.New(watcher.Config{Dir: inboxDir, QueueSize: 4, CatchUpOnly: true}, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("watcher start: %v", err)
	}
	stats, err := p.Run(context.Background(), w.Candidates())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Processed != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if _, err := os.Stat(filepath.Join(root, "Invoices", "Acme_Invoice_2024.pdf")); err != nil {
		t.Fatalf("expected sorted file: %v", err)
	}
	if !strings.Contains(prompt, "Invoice from Acme Corp") || !strings.Contains(prompt, "0123456789") {
		t.Fatalf("classifier did not receive native and ocr text: %q", prompt)
	}
}
