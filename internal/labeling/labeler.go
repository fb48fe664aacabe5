// Package labeling classifies OCR text into real-estate document categories,
// extracts names, addresses and dates from it, and links the people it names
// to existing contacts.
package labeling

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kairo-crm/intake/internal/llm"
	"github.com/kairo-crm/intake/internal/model"
)

// ErrNoText is returned for documents without OCR text.
var ErrNoText = eris.New("No OCR text available for AI labeling")

var labelsSchema = llm.MustCompileSchema("document_labels", `{
	"type": "object",
	"required": ["category"],
	"properties": {
		"category": {"type": "string", "minLength": 1},
		"extracted_names": {"type": ["array", "null"], "items": {"type": "string"}},
		"extracted_addresses": {"type": ["array", "null"], "items": {"type": "string"}},
		"extracted_date_of_birth": {"type": ["string", "null"]},
		"extracted_place_of_birth": {"type": ["string", "null"]},
		"document_date": {"type": ["string", "null"]},
		"due_date": {"type": ["string", "null"]},
		"description": {"type": ["string", "null"]},
		"has_signature": {"type": ["boolean", "null"]},
		"confidence": {
			"type": ["object", "null"],
			"additionalProperties": {"type": ["number", "null"]}
		}
	}
}`)

// Labeler asks a completion service for document metadata.
type Labeler struct {
	llm         llm.Completer
	temperature float64
}

// NewLabeler creates a Labeler. completer must not be nil.
func NewLabeler(completer llm.Completer) *Labeler {
	return &Labeler{llm: completer, temperature: 0.1}
}

// Label extracts document metadata from OCR text and scores its category.
func (l *Labeler) Label(ctx context.Context, text string) (*model.DocumentLabels, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrNoText
	}
	if l.llm == nil {
		return nil, eris.New("labeling: no completion service configured")
	}

	sent := Truncate(text)
	if len(sent) != len(text) {
		zap.L().Info("labeling: ocr text truncated",
			zap.Int("chars", len([]rune(text))),
			zap.Int("sent_chars", len([]rune(sent))),
		)
	}

	temp := l.temperature
	var raw json.RawMessage
	err := llm.CompleteJSON(ctx, l.llm, llm.Request{
		System:      systemPrompt,
		Prompt:      "Analyze this OCR text and extract metadata:\n\n" + sent,
		MaxTokens:   1000,
		Temperature: &temp,
	}, labelsSchema, &raw)
	if err != nil {
		return nil, eris.Wrap(err, "labeling: label document")
	}

	labels, err := parseLabels(raw)
	if err != nil {
		return nil, err
	}
	return labels, nil
}

// parseLabels decodes a validated model answer and derives the score.
func parseLabels(raw json.RawMessage) (*model.DocumentLabels, error) {
	var labels model.DocumentLabels
	if err := json.Unmarshal(raw, &labels); err != nil {
		return nil, eris.Wrap(err, "labeling: decode labels")
	}
	labels.Category = strings.TrimSpace(labels.Category)
	labels.ImportanceScore = ImportanceScore(labels.Category)
	labels.ExtractedNames = cleanList(labels.ExtractedNames)
	labels.ExtractedAddresses = cleanList(labels.ExtractedAddresses)
	labels.Raw = raw
	return &labels, nil
}

// cleanList trims entries and drops blanks and repeats.
func cleanList(in []string) []string {
	if in == nil {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[strings.ToLower(s)] {
			continue
		}
		seen[strings.ToLower(s)] = true
		out = append(out, s)
	}
	return out
}
