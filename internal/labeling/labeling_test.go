package labeling

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kairo-crm/intake/internal/llm"
)

func TestImportanceScore(t *testing.T) {
	tests := []struct {
		category string
		want     int
		tier     Tier
	}{
		{"DNI", 10, TierCritical},
		{"IBI Receipt", 8, TierCritical},
		{"Earnest Money Contract (Arras)", 8, TierRecommended},
		{"Payslips", 6, TierRecommended},
		{"Floor Plans", 3, TierAdvised},
		{"Property Photos", 2, TierAdvised},
		{"Other", 1, TierOther},
		{"Shopping List", 1, TierOther},
	}
	for _, tt := range tests {
		t.Run(tt.category, func(t *testing.T) {
			assert.Equal(t, tt.want, ImportanceScore(tt.category))
			assert.Equal(t, tt.tier, TierOf(tt.category))
		})
	}
}

func TestCategories(t *testing.T) {
	all := Categories()
	assert.Len(t, all, 32)
	assert.Equal(t, "DNI", all[0])
	assert.Equal(t, CategoryOther, all[len(all)-1])
	for _, c := range all {
		assert.Contains(t, systemPrompt, c)
	}
}

func TestTruncate(t *testing.T) {
	short := strings.Repeat("a", 6000)
	assert.Equal(t, short, Truncate(short))

	long := strings.Repeat("h", 4000) + strings.Repeat("m", 500) + strings.Repeat("t", 2000)
	got := Truncate(long)
	assert.Equal(t, strings.Repeat("h", 4000)+"\n\n[... middle content truncated ...]\n\n"+strings.Repeat("t", 2000), got)

	// Counts characters, so multi-byte text is cut on rune boundaries.
	accented := strings.Repeat("é", 7000)
	got = Truncate(accented)
	assert.True(t, strings.HasPrefix(got, strings.Repeat("é", 4000)+"\n\n[..."))
	assert.True(t, strings.HasSuffix(got, "...]\n\n"+strings.Repeat("é", 2000)))
}

func TestLabel(t *testing.T) {
	c := new(mockCompleter)
	c.On("Complete", mock.Anything, mock.MatchedBy(func(req llm.Request) bool {
		return req.JSON && req.MaxTokens == 1000 && req.Temperature != nil && *req.Temperature == 0.1 &&
			strings.HasPrefix(req.Prompt, "Analyze this OCR text and extract metadata:\n\nDOCUMENTO NACIONAL") &&
			strings.Contains(req.System, "Nota Simple")
	})).Return("```json\n"+`{
		"category": " DNI ",
		"extracted_names": ["Ana Gómez", "ana gómez", " "],
		"extracted_addresses": null,
		"extracted_date_of_birth": "1980-05-01",
		"extracted_place_of_birth": "Sevilla",
		"document_date": null,
		"due_date": "2030-01-01",
		"description": "Spanish ID card",
		"has_signature": true,
		"confidence": {"category": 0.95, "extracted_date_of_birth": 0.9, "due_date": 0.7}
	}`+"\n```", nil)

	labels, err := NewLabeler(c).Label(context.Background(), "DOCUMENTO NACIONAL DE IDENTIDAD")
	require.NoError(t, err)

	assert.Equal(t, "DNI", labels.Category)
	assert.Equal(t, 10, labels.ImportanceScore)
	assert.Equal(t, []string{"Ana Gómez"}, labels.ExtractedNames)
	assert.Nil(t, labels.ExtractedAddresses)
	require.NotNil(t, labels.DateOfBirth)
	assert.Equal(t, "1980-05-01", *labels.DateOfBirth)
	assert.Nil(t, labels.DocumentDate)
	assert.True(t, labels.HasSignature)
	avg, ok := labels.AverageConfidence()
	assert.True(t, ok)
	assert.Equal(t, 0.85, avg)
	assert.NotEmpty(t, labels.Raw)
	c.AssertExpectations(t)
}

func TestLabel_Errors(t *testing.T) {
	t.Run("empty text", func(t *testing.T) {
		c := new(mockCompleter)
		_, err := NewLabeler(c).Label(context.Background(), "  \n ")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNoText))
		c.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
	})

	t.Run("missing category", func(t *testing.T) {
		c := new(mockCompleter)
		c.On("Complete", mock.Anything, mock.Anything).Return(`{"extracted_names": ["Ana"]}`, nil)
		_, err := NewLabeler(c).Label(context.Background(), "text")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "document_labels")
	})

	t.Run("provider error", func(t *testing.T) {
		c := new(mockCompleter)
		c.On("Complete", mock.Anything, mock.Anything).Return("", errors.New("429 too many requests"))
		_, err := NewLabeler(c).Label(context.Background(), "text")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "label document")
	})

	t.Run("no completer", func(t *testing.T) {
		_, err := NewLabeler(nil).Label(context.Background(), "text")
		require.Error(t, err)
	})
}
