package labeling

import (
	"strings"
)

const (
	truncateAbove = 6000
	keepHead      = 4000
	keepTail      = 2000
	truncMarker   = "\n\n[... middle content truncated ...]\n\n"
)

// Truncate keeps the head and tail of long OCR text, where document type,
// names and signatures usually are. Lengths count characters, not bytes.
func Truncate(text string) string {
	r := []rune(text)
	if len(r) <= truncateAbove {
		return text
	}
	return string(r[:keepHead]) + truncMarker + string(r[len(r)-keepTail:])
}

// systemPrompt lists the categories by tier and the extraction rules.
var systemPrompt = buildSystemPrompt()

func buildSystemPrompt() string {
	var b strings.Builder
	b.WriteString(`You are an expert real estate document classifier for the Spanish market.
Your task is to analyze OCR text from real estate documents and extract structured information.

**DOCUMENT CATEGORIES** (choose the most specific match):
`)
	for _, tier := range []Tier{TierCritical, TierRecommended, TierAdvised} {
		b.WriteString("\n")
		b.WriteString(strings.ToUpper(string(tier)))
		b.WriteString(":\n- ")
		var names []string
		for _, c := range categories {
			if c.tier == tier {
				names = append(names, c.name)
			}
		}
		b.WriteString(strings.Join(names, ", "))
		b.WriteString("\n")
	}
	b.WriteString(`
OTHER:
- Other (for unrecognized documents)

**EXTRACTION RULES:**
1. **category**: Select ONE category from the list above that best matches the document
2. **extracted_names**: Extract ALL person names (clients, notaries, agents) as separate items
3. **extracted_addresses**: Extract ALL property addresses mentioned
4. **extracted_date_of_birth**: Date of birth of the document holder (ID documents), YYYY-MM-DD
5. **extracted_place_of_birth**: Place of birth of the document holder (ID documents)
6. **document_date**: Primary document date (issue date, signing date, or most recent date)
7. **due_date**: Expiration or deadline date (if any)
8. **description**: Write a concise 1-2 sentence summary in English
9. **has_signature**: true if you see words like "signed", "signature", "firmado", "firma"
10. **confidence**: Score 0.0-1.0 for each field (use 0.0 for missing/uncertain fields)

**IMPORTANT:**
- If a field is not found or you're uncertain, set it to null and confidence to 0.0
- Be conservative with confidence scores; use < 0.7 for uncertain data
- Names should be "First Last" format, not reversed
- Addresses should include street, city, and any identifying details

**RESPONSE FORMAT:**
Return valid JSON only, no explanation:
{
  "category": "Document Category Here",
  "extracted_names": ["Name 1", "Name 2"],
  "extracted_addresses": ["Address 1"],
  "extracted_date_of_birth": "YYYY-MM-DD",
  "extracted_place_of_birth": "City, Country",
  "document_date": "YYYY-MM-DD",
  "due_date": "YYYY-MM-DD",
  "description": "Brief summary here",
  "has_signature": true,
  "confidence": {
    "category": 0.95,
    "document_date": 0.88,
    "due_date": 0.0,
    "has_signature": 0.90
  }
}
`)
	return b.String()
}
