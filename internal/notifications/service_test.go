package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"docsorter/internal/config"
	"docsorter/internal/notifications"
)

type capturedRequest struct {
	title    string
	tags     string
	priority string
	body     string
}

func newNtfy(t *testing.T, status int) (*httptest.Server, *[]capturedRequest) {
	t.Helper()
	var got []capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got = append(got, capturedRequest{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	svc := notifications.NewService(config.Notifications{})
	if svc.Enabled() {
		t.Fatal("expected noop service")
	}
	if err := svc.NotifyDocumentFailed(context.Background(), "scan.pdf", "classify", errors.New("boom")); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	srv, got := newNtfy(t, http.StatusOK)
	svc := notifications.NewService(config.Notifications{NtfyTopic: srv.URL, NotifySorted: true})
	ctx := context.Background()

	if err := svc.NotifyDocumentFailed(ctx, "scan.pdf", "classify", errors.New("classifier unavailable")); err != nil {
		t.Fatalf("NotifyDocumentFailed: %v", err)
	}
	if err := svc.NotifyDocumentSorted(ctx, "scan.pdf", "/sorted/Invoices/Power Bill.pdf"); err != nil {
		t.Fatalf("NotifyDocumentSorted: %v", err)
	}
	if err := svc.NotifyRunSummary(ctx, notifications.Summary{Processed: 3, Failed: 1, Duration: 90 * time.Second}); err != nil {
		t.Fatalf("NotifyRunSummary: %v", err)
	}

	if len(*got) != 3 {
		t.Fatalf("expected 3 requests, got %d", len(*got))
	}
	failed := (*got)[0]
	if failed.title != "docsorter - Document Failed" || failed.priority != "high" {
		t.Fatalf("unexpected failure headers %+v", failed)
	}
	if !strings.Contains(failed.body, "scan.pdf stayed in the inbox (failed at classify)") ||
		!strings.Contains(failed.body, "classifier unavailable") {
		t.Fatalf("unexpected failure body %q", failed.body)
	}
	if sorted := (*got)[1]; !strings.Contains(sorted.body, "/sorted/Invoices/Power Bill.pdf") || sorted.tags != "docsorter,sorted" {
		t.Fatalf("unexpected sorted request %+v", sorted)
	}
	summary := (*got)[2]
	if summary.body != "Sorted 3, skipped 0, failed 1, deferred 0 in 1m30s" || summary.priority != "high" {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestSortedNotificationsAreOptIn(t *testing.T) {
	srv, got := newNtfy(t, http.StatusOK)
	svc := notifications.NewService(config.Notifications{NtfyTopic: srv.URL})
	if err := svc.NotifyDocumentSorted(context.Background(), "a.pdf", "/x/a.pdf"); err != nil {
		t.Fatal(err)
	}
	if len(*got) != 0 {
		t.Fatalf("expected no request without notify_sorted, got %d", len(*got))
	}
}

func TestNtfyErrorStatus(t *testing.T) {
	srv, _ := newNtfy(t, http.StatusForbidden)
	svc := notifications.NewService(config.Notifications{NtfyTopic: srv.URL})
	err := svc.TestNotification(context.Background())
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
}
