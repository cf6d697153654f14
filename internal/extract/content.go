package extract

import "strings"

// Stage names the engines that ran for a document.
type Stage string

const (
	StageNative Stage = "native"
	StageOCR    Stage = "ocr"
	StageBoth   Stage = "both"
)

// Code classifies an extraction diagnostic.
type Code string

const (
	CodeNativeUnreadable     Code = "native_unreadable"
	CodeNativePageFailed     Code = "native_page_failed"
	CodeNativeEmpty          Code = "native_empty"
	CodeOCREngineUnavailable Code = "ocr_engine_unavailable"
	CodeOCRRenderFailed      Code = "ocr_render_failed"
	CodeOCRPageFailed        Code = "ocr_page_failed"
	CodeNoText               Code = "no_text"
)

// Diagnostic records one degraded step of an extraction.
type Diagnostic struct {
	Stage  Stage
	Code   Code
	Page   int
	Detail string
}

// Content is the text pulled from one document.
type Content struct {
	Text        string
	Stage       Stage
	Chars       int
	Diagnostics []Diagnostic
}

// Degraded reports whether an engine failed while producing this content,
// as opposed to the document simply holding no text.
func (c Content) Degraded() bool {
	for _, d := range c.Diagnostics {
		switch d.Code {
		case CodeNativeEmpty, CodeNoText:
			continue
		}
		return true
	}
	return false
}

// Has reports whether a diagnostic with code was recorded.
func (c Content) Has(code Code) bool {
	for _, d := range c.Diagnostics {
		if d.Code == code {
			return true
		}
	}
	return false
}

// Codes lists the recorded diagnostic codes for logging.
func (c Content) Codes() string {
	if len(c.Diagnostics) == 0 {
		return ""
	}
	codes := make([]string, 0, len(c.Diagnostics))
	seen := map[Code]bool{}
	for _, d := range c.Diagnostics {
		if seen[d.Code] {
			continue
		}
		seen[d.Code] = true
		codes = append(codes, string(d.Code))
	}
	return strings.Join(codes, ",")
}
