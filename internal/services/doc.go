// Package services defines shared utilities consumed by the pipeline stages
// and the classifier integration.
//
// Key responsibilities:
//   - Context helpers that stamp file paths, stage names, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper that let callers tell a
//     missing file from an unreachable classifier or an exhausted placement.
//
// Use these helpers when wiring new stage logic so failure reporting stays
// uniform across the pipeline.
package services
