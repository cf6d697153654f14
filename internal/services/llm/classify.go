package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"docsorter/internal/logging"
	"docsorter/internal/services"
)

// ClassificationPrompt instructs the model to return a category and filename.
const ClassificationPrompt = `You sort scanned personal documents into folders.
Read the document text and answer with a single JSON object:
{"category": "<folder name>", "filename": "<descriptive file name>"}

Rules:
- category is a short plural noun in the language of the document, e.g. "Invoices", "Contracts", "Insurance", "Tax", "Bank Statements", "Receipts", "Letters".
- filename has no extension and uses underscores instead of spaces, e.g. "Acme_Invoice_2024-03".
- include the sender or issuer and the most relevant date when they are present.
- if the text is empty or unreadable, use category "Unsorted" and derive the filename from the original file name.
- respond with JSON only.`

const truncationMarker = "\n[... truncated]"

const metadataSchema = `{
  "type": "object",
  "required": ["category", "filename"],
  "properties": {
    "category": {"type": "string", "minLength": 1, "pattern": "\\S"},
    "filename": {"type": "string", "minLength": 1, "pattern": "\\S"}
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func metadataValidator() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("metadata.json", strings.NewReader(metadataSchema)); err != nil {
			schemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile("metadata.json")
	})
	return compiledSchema, schemaErr
}

// Request carries the document to classify.
type Request struct {
	Text         string
	OriginalName string
}

// Metadata is the classifier's answer for one document.
type Metadata struct {
	Category string `json:"category"`
	Filename string `json:"filename"`
	Raw      string `json:"-"`
}

// Classify sends the document text and returns the category and filename.
// Unreachable endpoints and malformed answers are errors; there is no default.
func (c *Client) Classify(ctx context.Context, req Request) (Metadata, error) {
	ctx = services.WithStage(ctx, "classify")
	logger := logging.WithContext(ctx, c.logger)

	preview, truncated := Preview(req.Text, c.cfg.PreviewLength)
	prompt := buildUserPrompt(preview, req.OriginalName)

	start := time.Now()
	content, err := c.CompleteJSON(ctx, ClassificationPrompt, prompt)
	if err != nil {
		if errors.Is(err, services.ErrConfiguration) {
			return Metadata{}, err
		}
		return Metadata{}, classifyFailure(err)
	}

	meta, err := parseMetadata(content)
	if err != nil {
		return Metadata{}, err
	}
	logger.Debug("document classified",
		logging.String("category", meta.Category),
		logging.String("filename", meta.Filename),
		logging.Int("preview_chars", utf8.RuneCountInString(preview)),
		logging.Bool("truncated", truncated),
		logging.Duration("duration", time.Since(start)),
	)
	return meta, nil
}

func parseMetadata(content string) (Metadata, error) {
	object := extractJSONObject(content)
	var doc any
	if err := DecodeLLMJSON(object, &doc); err != nil {
		return Metadata{}, services.Wrap(services.ErrValidation, "classify", "parse", "response is not json", err)
	}
	schema, err := metadataValidator()
	if err != nil {
		return Metadata{}, services.Wrap(services.ErrConfiguration, "classify", "schema", "", err)
	}
	if err := schema.Validate(doc); err != nil {
		return Metadata{}, services.Wrap(services.ErrValidation, "classify", "validate",
			"response snippet: "+summarizePayloadSnippet(content), err)
	}
	var meta Metadata
	if err := DecodeLLMJSON(object, &meta); err != nil {
		return Metadata{}, services.Wrap(services.ErrValidation, "classify", "parse", "", err)
	}
	meta.Category = strings.TrimSpace(meta.Category)
	meta.Filename = strings.TrimSpace(meta.Filename)
	meta.Raw = content
	return meta, nil
}

func buildUserPrompt(preview, originalName string) string {
	var b strings.Builder
	if name := strings.TrimSpace(originalName); name != "" {
		b.WriteString("Original file name: ")
		b.WriteString(name)
		b.WriteString("\n\n")
	}
	if strings.TrimSpace(preview) == "" {
		b.WriteString("Document text: (empty)")
		return b.String()
	}
	b.WriteString("Document text:\n")
	b.WriteString(preview)
	return b.String()
}

// Preview truncates text to at most limit runes. A non-positive limit keeps
// the whole text.
func Preview(text string, limit int) (string, bool) {
	text = strings.TrimSpace(text)
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text, false
	}
	runes := []rune(text)
	return string(runes[:limit]) + truncationMarker, true
}
