// Package extract converts inbox documents into plain text.
//
// PDFs are read natively with pdfcpu; when the trimmed text is shorter than
// the configured minimum, or the input is an image, the OCR recognizer runs
// and its text is appended in page order. Engine failures never fail an
// extraction: they are recorded as diagnostics on the returned Content so
// callers can tell "no text found" from "engine unavailable". The only error
// Extract returns is a missing source file.
package extract
