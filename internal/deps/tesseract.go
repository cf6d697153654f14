package deps

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// OCRRequirements lists the binaries used by the OCR fallback. Both are
// optional: without them extraction degrades to native PDF text.
func OCRRequirements(pdftoppm, tesseract string) []Requirement {
	return []Requirement{
		{
			Name:        "pdftoppm",
			Command:     pdftoppm,
			Description: "Renders scanned PDF pages for OCR (poppler-utils)",
			Optional:    true,
		},
		{
			Name:        "tesseract",
			Command:     tesseract,
			Description: "Recognizes text in images and rendered pages",
			Optional:    true,
		},
	}
}

// TesseractLanguages returns the language packs the tesseract binary reports.
func TesseractLanguages(ctx context.Context, binary, tessdataDir string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	args := []string{"--list-langs"}
	if tessdataDir != "" {
		args = append(args, "--tessdata-dir", tessdataDir)
	}
	output, err := exec.CommandContext(ctx, binary, args...).CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("%s --list-langs: %w", binary, err)
	}
	return parseLanguageList(string(output)), nil
}

func parseLanguageList(output string) []string {
	var langs []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(strings.ToLower(line), "list of available languages") {
			continue
		}
		langs = append(langs, line)
	}
	return langs
}

// MissingLanguages reports entries of a "deu+eng" style selection that are
// not in available.
func MissingLanguages(selection string, available []string) []string {
	have := make(map[string]bool, len(available))
	for _, lang := range available {
		have[lang] = true
	}
	var missing []string
	for _, lang := range strings.Split(selection, "+") {
		lang = strings.TrimSpace(lang)
		if lang != "" && !have[lang] {
			missing = append(missing, lang)
		}
	}
	return missing
}
