// Package ocr wraps the external pdftoppm and tesseract binaries used when a
// document carries no usable embedded text.
package ocr
