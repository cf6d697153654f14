package organizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"docsorter/internal/fileutil"
	"docsorter/internal/logging"
	"docsorter/internal/services"
)

// MaxSuffix caps the numeric conflict suffix.
const MaxSuffix = 1000

// moveAttempts bounds retries when another process takes a resolved name
// between resolution and move.
const moveAttempts = 3

// Placement is the terminal record for one placed file.
type Placement struct {
	Source   string
	Final    string
	Category string
	Filename string
	// Suffix is the conflict counter used, 0 when the plain name was free.
	Suffix      int
	CrossDevice bool
}

// Organizer moves classified files into root/category/filename.ext.
type Organizer struct {
	root   string
	logger *slog.Logger
	mu     sync.Mutex
}

// New constructs an organizer rooted at root.
func New(root string, logger *slog.Logger) *Organizer {
	return &Organizer{root: root, logger: logging.NewComponentLogger(logger, "organizer")}
}

// Root returns the output root directory.
func (o *Organizer) Root() string {
	return o.root
}

// Place moves src into the output tree using the classifier's category and
// filename. The source extension is preserved as given.
func (o *Organizer) Place(ctx context.Context, src, category, filename string) (Placement, error) {
	logger := logging.WithContext(ctx, o.logger)

	info, err := os.Stat(src)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Placement{}, services.Wrap(services.ErrNotFound, "organizer", "stat source", src, err)
		}
		return Placement{}, services.Wrap(services.ErrTransient, "organizer", "stat source", src, err)
	}
	if !info.Mode().IsRegular() {
		return Placement{}, services.Wrap(services.ErrValidation, "organizer", "stat source", "source is not a regular file", nil)
	}

	ext := filepath.Ext(src)
	placement := Placement{
		Source:   src,
		Category: Sanitize(category),
		Filename: SanitizeFilename(filename, ext),
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	dir := filepath.Join(o.root, placement.Category)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Placement{}, services.Wrap(services.ErrTransient, "organizer", "create category", dir, err)
	}

	for attempt := 1; attempt <= moveAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Placement{}, services.Wrap(services.ErrTimeout, "organizer", "move", "cancelled before move", err)
		}
		target, suffix, err := resolve(dir, placement.Filename, ext)
		if err != nil {
			logging.WarnWithContext(logger, "no free name for document", "placement_ambiguous",
				logging.String("category", placement.Category),
				logging.String("filename", placement.Filename),
				logging.Int("max_suffix", MaxSuffix),
				logging.String(logging.FieldErrorHint, "tidy the category folder or rename the file manually"),
				logging.String(logging.FieldImpact, "file left in inbox"),
			)
			return Placement{}, err
		}

		result, err := fileutil.MoveFile(src, target)
		if errors.Is(err, fileutil.ErrTargetExists) {
			logger.Debug("target taken during move; resolving again", logging.String("target", target))
			continue
		}
		if err != nil {
			return Placement{}, services.Wrap(services.ErrTransient, "organizer", "move", target, err)
		}

		placement.Final = target
		placement.Suffix = suffix
		placement.CrossDevice = result.CrossDevice
		if !result.SourceRemoved {
			logging.WarnWithContext(logger, "copied across devices but could not remove source", "source_cleanup_failed",
				logging.String("target", target),
				logging.String(logging.FieldErrorHint, "delete the inbox copy manually"),
				logging.String(logging.FieldImpact, "duplicate remains in inbox and may be sorted again"),
			)
		}
		logger.Info("document placed",
			logging.String("target", target),
			logging.Int("suffix", suffix),
			logging.Bytes("size", info.Size()),
			logging.Bool("cross_device", result.CrossDevice),
		)
		return placement, nil
	}
	return Placement{}, services.Wrap(services.ErrTransient, "organizer", "move",
		fmt.Sprintf("target name kept changing after %d attempts", moveAttempts), fileutil.ErrTargetExists)
}

// resolve returns the first free path among name.ext, name_1.ext ... name_MaxSuffix.ext.
func resolve(dir, name, ext string) (string, int, error) {
	candidate := filepath.Join(dir, name+ext)
	free, err := isFree(candidate)
	if err != nil {
		return "", 0, err
	}
	if free {
		return candidate, 0, nil
	}
	for suffix := 1; suffix <= MaxSuffix; suffix++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%d%s", name, suffix, ext))
		free, err := isFree(candidate)
		if err != nil {
			return "", 0, err
		}
		if free {
			return candidate, suffix, nil
		}
	}
	return "", 0, services.Wrap(services.ErrPlacementAmbiguous, "organizer", "resolve",
		fmt.Sprintf("%s%s and suffixes _1.._%d are all taken", name, ext, MaxSuffix), nil)
}

func isFree(path string) (bool, error) {
	_, err := os.Lstat(path)
	if err == nil {
		return false, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return true, nil
	}
	return false, services.Wrap(services.ErrTransient, "organizer", "stat target", path, err)
}

// Describe renders a placement for CLI output.
func (p Placement) Describe(root string) string {
	rel, err := filepath.Rel(root, p.Final)
	if err != nil || strings.HasPrefix(rel, "..") {
		return p.Final
	}
	return rel
}
