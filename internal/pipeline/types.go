package pipeline

import (
	"context"
	"time"

	"docsorter/internal/extract"
	"docsorter/internal/inbox"
	"docsorter/internal/organizer"
	"docsorter/internal/services/llm"
)

// Extractor produces the text of one inbox document.
type Extractor interface {
	Extract(ctx context.Context, cand inbox.FileCandidate) (extract.Content, error)
}

// Classifier turns document text into a category and filename.
type Classifier interface {
	Classify(ctx context.Context, req llm.Request) (llm.Metadata, error)
}

// Organizer moves a classified file into the output tree.
type Organizer interface {
	Place(ctx context.Context, src, category, filename string) (organizer.Placement, error)
}

// Status is the terminal result of one candidate.
type Status string

const (
	StatusProcessed Status = "processed"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Outcome records what happened to one candidate.
type Outcome struct {
	Candidate inbox.FileCandidate
	Status    Status
	// Stage is where the candidate stopped: recheck, extract, classify or place.
	Stage     string
	Reason    string
	Content   extract.Content
	Metadata  llm.Metadata
	Placement organizer.Placement
	Err       error
	Duration  time.Duration
}

// Stats counts candidate outcomes for one run.
type Stats struct {
	Processed int
	Skipped   int
	Failed    int
	// Deferred candidates were queued but not started before shutdown.
	Deferred int
}

// Total is the number of candidates the run accounted for.
func (s Stats) Total() int {
	return s.Processed + s.Skipped + s.Failed + s.Deferred
}
