// Package config loads, normalizes, and validates sorter configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the environment overrides
// (INBOX_PATH, TARGET_ROOT, OLLAMA_URL, MODEL_NAME, ...). The Config value is
// built once at start-up and passed to each component's constructor.
package config
