package preflight

import (
	"context"
	"errors"
	"strings"

	"docsorter/internal/config"
	"docsorter/internal/services"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Optional bool
	Detail   string
	Err      error
}

// RunAll executes every start-up check: directory access, OCR tooling and
// classifier reachability.
func RunAll(ctx context.Context, cfg *config.Config, classifier HealthChecker) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Inbox directory", cfg.Paths.InboxDir),
		CheckDirectoryAccess("Output root", cfg.Paths.OutputRoot),
	}
	results = append(results, CheckOCR(ctx, cfg.Extraction)...)
	results = append(results, CheckClassifier(ctx, classifier, cfg.Classifier.BaseURL, cfg.Classifier.Model))
	return results
}

// Failures returns the required checks that did not pass.
func Failures(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed && !r.Optional {
			failed = append(failed, r)
		}
	}
	return failed
}

// Err folds required failures into one error. A failed classifier check is
// tagged ErrUnavailable; any other failure is ErrConfiguration.
func Err(results []Result) error {
	failed := Failures(results)
	if len(failed) == 0 {
		return nil
	}
	marker := services.ErrConfiguration
	parts := make([]string, 0, len(failed))
	var causes []error
	for _, r := range failed {
		parts = append(parts, r.Name+": "+r.Detail)
		if r.Name == "Classifier" && !errors.Is(r.Err, services.ErrConfiguration) {
			marker = services.ErrUnavailable
		}
		if r.Err != nil {
			causes = append(causes, r.Err)
		}
	}
	return services.Wrap(marker, "preflight", "check", strings.Join(parts, "; "), errors.Join(causes...))
}
