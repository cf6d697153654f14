// Package language maps the language names and ISO 639 codes people type into
// config files onto the traineddata names tesseract expects.
package language
