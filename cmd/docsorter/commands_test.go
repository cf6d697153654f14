package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCheckPassesWithoutOCR(t *testing.T) {
	srv := newClassifierServer(t)
	env := setupCLITestEnv(t, srv.URL)

	out, _, err := runCLI(t, []string{"check"}, env.configPath)
	if err != nil {
		t.Fatalf("check: %v\n%s", err, out)
	}
	requireContains(t, out, "Classifier")
	requireContains(t, out, "warn")
	requireContains(t, out, "All required checks passed")
}

func TestCheckFailsWhenClassifierDown(t *testing.T) {
	env := setupCLITestEnv(t, "http://127.0.0.1:1")

	out, _, err := runCLI(t, []string{"check"}, env.configPath)
	if err == nil {
		t.Fatal("expected check to fail")
	}
	requireContains(t, out, "FAIL")
}

func TestExtractJSON(t *testing.T) {
	env := setupCLITestEnv(t, "http://127.0.0.1:1")
	path := writeInboxFile(t, env.inboxDir, "photo.jpg")

	out, _, err := runCLI(t, []string{"extract", "--json", path}, env.configPath)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	var view extractView
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if view.Chars != 0 || !view.Degraded {
		t.Fatalf("expected empty degraded extraction, got %+v", view)
	}
}

func TestExtractRejectsUnsupportedFile(t *testing.T) {
	env := setupCLITestEnv(t, "http://127.0.0.1:1")
	path := writeInboxFile(t, env.inboxDir, "notes.docx")

	_, _, err := runCLI(t, []string{"extract", path}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "not a sortable document") {
		t.Fatalf("expected unsupported error, got %v", err)
	}
}

func TestClassifyDoesNotMoveFile(t *testing.T) {
	srv := newClassifierServer(t)
	env := setupCLITestEnv(t, srv.URL)
	path := writeInboxFile(t, env.inboxDir, "scan.pdf")

	out, _, err := runCLI(t, []string{"classify", "--json", path}, env.configPath)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	var view classifyView
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	want := filepath.Join(env.outputRoot, "Invoices", "Power Bill March.pdf")
	if view.Destination != want {
		t.Fatalf("destination = %q, want %q", view.Destination, want)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("classify must not move the file: %v", err)
	}
}

func TestScanSortsInbox(t *testing.T) {
	srv := newClassifierServer(t)
	env := setupCLITestEnv(t, srv.URL)
	writeInboxFile(t, env.inboxDir, "scan.pdf")
	writeInboxFile(t, env.inboxDir, ".hidden.pdf")

	out, _, err := runCLI(t, []string{"scan"}, env.configPath)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	requireContains(t, out, "1 sorted, 0 skipped, 0 failed, 0 deferred")
	if _, err := os.Stat(filepath.Join(env.outputRoot, "Invoices", "Power Bill March.pdf")); err != nil {
		t.Fatalf("expected sorted file: %v", err)
	}
	if _, err := os.Stat(filepath.Join(env.inboxDir, ".hidden.pdf")); err != nil {
		t.Fatalf("hidden file should stay in inbox: %v", err)
	}
}

func TestScanFailsWhenClassifierDown(t *testing.T) {
	env := setupCLITestEnv(t, "http://127.0.0.1:1")
	path := writeInboxFile(t, env.inboxDir, "scan.pdf")

	if _, _, err := runCLI(t, []string{"scan", "--quiet"}, env.configPath); err == nil {
		t.Fatal("expected start-up failure")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("file should remain in inbox: %v", err)
	}
}

func TestTestNotifyRequiresTopic(t *testing.T) {
	env := setupCLITestEnv(t, "http://127.0.0.1:1")

	_, _, err := runCLI(t, []string{"test-notify"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "ntfy_topic") {
		t.Fatalf("expected missing topic error, got %v", err)
	}
}
