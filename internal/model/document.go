package model

import (
	"encoding/json"
	"math"
)

// DocumentLabels is the metadata the labeler extracts from a document's text.
// Nil pointers mean the model did not find the field.
type DocumentLabels struct {
	Category           string             `json:"category"`
	ImportanceScore    int                `json:"importance_score"`
	ExtractedNames     []string           `json:"extracted_names"`
	ExtractedAddresses []string           `json:"extracted_addresses"`
	DateOfBirth        *string            `json:"extracted_date_of_birth"`
	PlaceOfBirth       *string            `json:"extracted_place_of_birth"`
	DocumentDate       *string            `json:"document_date"`
	DueDate            *string            `json:"due_date"`
	Description        *string            `json:"description"`
	HasSignature       bool               `json:"has_signature"`
	Confidence         map[string]float64 `json:"confidence,omitempty"`
	Raw                json.RawMessage    `json:"raw_response,omitempty"`
}

// AverageConfidence is the mean of the per-field confidences rounded to two
// decimals. ok is false when the model reported none.
func (l DocumentLabels) AverageConfidence() (avg float64, ok bool) {
	if len(l.Confidence) == 0 {
		return 0, false
	}
	var sum float64
	for _, c := range l.Confidence {
		sum += c
	}
	return math.Round(sum/float64(len(l.Confidence))*100) / 100, true
}
