// Package testsupport builds throwaway docsorter configurations, inbox files
// and stub OCR binaries for tests across packages.
package testsupport
