package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"docsorter/internal/config"
	"docsorter/internal/deps"
	"docsorter/internal/language"
	"docsorter/internal/services"
	"docsorter/internal/services/llm"
)

const classifierCheckTimeout = 30 * time.Second

// HealthChecker is the liveness probe of the classifier endpoint.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// NewClassifierChecker builds a single-attempt client for the liveness probe.
func NewClassifierChecker(cfg config.Classifier) HealthChecker {
	return llm.NewClient(llm.Config{
		API:            cfg.API,
		BaseURL:        cfg.BaseURL,
		Model:          cfg.Model,
		APIKey:         cfg.APIKey,
		TimeoutSeconds: cfg.TimeoutSeconds,
	}, llm.WithRetryMaxAttempts(1))
}

// CheckClassifier verifies that the classifier endpoint answers and serves
// the configured model. It uses a single attempt with a 30-second timeout.
func CheckClassifier(ctx context.Context, checker HealthChecker, endpoint, model string) Result {
	const name = "Classifier"
	if checker == nil {
		return Result{Name: name, Detail: "not configured"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, classifierCheckTimeout)
	defer cancel()

	if err := checker.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeClassifierError(err), Err: err}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s reachable (model %s)", endpoint, model)}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckOCR reports the OCR binaries and, when tesseract is present, whether
// the configured language packs are installed. All results are optional.
func CheckOCR(ctx context.Context, cfg config.Extraction) []Result {
	statuses := deps.CheckBinaries(deps.OCRRequirements(cfg.PdftoppmBinary, cfg.TesseractBinary))
	results := make([]Result, 0, len(statuses)+1)
	tesseract := ""
	for _, status := range statuses {
		result := Result{Name: status.Name, Passed: status.Available, Optional: status.Optional}
		if status.Available {
			result.Detail = status.Command
			if status.Name == "tesseract" {
				tesseract = status.Command
			}
		} else {
			result.Detail = status.Detail + "; extraction falls back to native PDF text only"
		}
		results = append(results, result)
	}
	if tesseract == "" {
		return results
	}

	langs := Result{Name: "OCR languages", Optional: true}
	available, err := deps.TesseractLanguages(ctx, tesseract, cfg.TessdataDir)
	switch {
	case err != nil:
		langs.Detail = fmt.Sprintf("could not list languages: %v", err)
	default:
		if missing := deps.MissingLanguages(cfg.OCRLanguages, available); len(missing) > 0 {
			langs.Detail = fmt.Sprintf("missing language packs: %s", strings.Join(missing, ", "))
		} else {
			langs.Passed = true
			langs.Detail = fmt.Sprintf("%s (%s)", cfg.OCRLanguages, language.DisplayList(cfg.OCRLanguages))
		}
	}
	return append(results, langs)
}

// summarizeClassifierError produces a human-readable summary for health check failures.
func summarizeClassifierError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (classifier unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (classifier unreachable)"
	}
	if errors.Is(err, services.ErrConfiguration) {
		return err.Error()
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return fmt.Sprintf("cannot connect (%v); is the model server running?", opErr.Err)
	}
	return err.Error()
}
