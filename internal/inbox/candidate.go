package inbox

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"docsorter/internal/services"
)

// Source records how a candidate was discovered.
type Source string

const (
	SourceCatchUp   Source = "catch-up"
	SourceLiveEvent Source = "live-event"
)

// SkipReason explains why a path never enters the pipeline.
type SkipReason string

const (
	SkipNone        SkipReason = ""
	SkipHidden      SkipReason = "hidden"
	SkipPlaceholder SkipReason = "cloud_placeholder"
	SkipUnsupported SkipReason = "unsupported_extension"
	SkipNotRegular  SkipReason = "not_regular_file"
	SkipMissing     SkipReason = "missing"
)

var supportedExtensions = map[string]struct{}{
	".pdf":  {},
	".jpg":  {},
	".jpeg": {},
	".png":  {},
}

// SupportedExtensions lists the accepted extensions in lower case.
func SupportedExtensions() []string {
	return []string{".pdf", ".jpg", ".jpeg", ".png"}
}

// FileCandidate is one inbox file handed from the watcher to the pipeline.
type FileCandidate struct {
	Path          string
	Ext           string
	Source        Source
	DiscoveredAt  time.Time
	CorrelationID string
}

// IsPDF reports whether the candidate is a text-container document.
func (c FileCandidate) IsPDF() bool {
	return strings.EqualFold(c.Ext, ".pdf")
}

// Name returns the base file name.
func (c FileCandidate) Name() string {
	return filepath.Base(c.Path)
}

// Eligible applies the name-based rules: hidden files, cloud placeholders,
// and unsupported extensions are rejected. The extension is returned with
// its original case.
func Eligible(path string) (string, SkipReason) {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") {
		return "", SkipHidden
	}
	if strings.HasSuffix(strings.ToLower(name), ".icloud") {
		return "", SkipPlaceholder
	}
	ext := filepath.Ext(name)
	if _, ok := supportedExtensions[strings.ToLower(ext)]; !ok {
		return "", SkipUnsupported
	}
	return ext, SkipNone
}

// CheckFile applies Eligible and additionally requires an existing regular file.
func CheckFile(path string) (string, os.FileInfo, SkipReason) {
	ext, reason := Eligible(path)
	if reason != SkipNone {
		return "", nil, reason
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", nil, SkipMissing
	}
	if !info.Mode().IsRegular() {
		return "", nil, SkipNotRegular
	}
	return ext, info, SkipNone
}

// NewCandidate validates path and builds a candidate stamped with a fresh
// correlation id. A skipped path yields a ErrValidation error carrying the reason,
// except for a missing file which yields ErrNotFound.
func NewCandidate(path string, source Source) (FileCandidate, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return FileCandidate{}, services.Wrap(services.ErrValidation, "inbox", "resolve", path, err)
	}
	ext, _, reason := CheckFile(abs)
	switch reason {
	case SkipNone:
	case SkipMissing:
		return FileCandidate{}, services.Wrap(services.ErrNotFound, "inbox", "stat", abs, fs.ErrNotExist)
	default:
		return FileCandidate{}, &SkipError{Path: abs, Reason: reason}
	}
	return FileCandidate{
		Path:          abs,
		Ext:           ext,
		Source:        source,
		DiscoveredAt:  time.Now(),
		CorrelationID: uuid.NewString(),
	}, nil
}

// SkipError reports a path that was rejected by the eligibility rules.
type SkipError struct {
	Path   string
	Reason SkipReason
}

func (e *SkipError) Error() string {
	return fmt.Sprintf("skip %s: %s", e.Path, e.Reason)
}

func (e *SkipError) Unwrap() error {
	return services.ErrValidation
}

// AsSkip extracts the skip reason from err if it is a SkipError.
func AsSkip(err error) (SkipReason, bool) {
	var skip *SkipError
	if errors.As(err, &skip) {
		return skip.Reason, true
	}
	return SkipNone, false
}
