package labeling

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kairo-crm/intake/internal/llm"
	"github.com/kairo-crm/intake/internal/model"
)

const (
	matchCandidates = 5
	matchThreshold  = 0.8
)

// Directory finds contacts by name and links them to documents.
type Directory interface {
	SearchContacts(ctx context.Context, userID, name string, limit int) ([]model.Contact, error)
	LinkContact(ctx context.Context, documentID, contactID string) error
}

// DocumentContext carries identity details from the document that help tell
// namesakes apart.
type DocumentContext struct {
	Addresses    []string
	DateOfBirth  string
	PlaceOfBirth string
}

// ContextOf extracts the matching context from labels.
func ContextOf(l *model.DocumentLabels) DocumentContext {
	dc := DocumentContext{Addresses: l.ExtractedAddresses}
	if l.DateOfBirth != nil {
		dc.DateOfBirth = *l.DateOfBirth
	}
	if l.PlaceOfBirth != nil {
		dc.PlaceOfBirth = *l.PlaceOfBirth
	}
	return dc
}

// Matcher links names extracted from a document to the user's contacts.
type Matcher struct {
	llm llm.Completer
	dir Directory
}

// NewMatcher creates a Matcher.
func NewMatcher(completer llm.Completer, dir Directory) *Matcher {
	return &Matcher{llm: completer, dir: dir}
}

type matchAnswer struct {
	ContactID  string  `json:"contact_id"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

var matchSchema = llm.MustCompileSchema("contact_match", `{
	"type": "object",
	"required": ["contact_id"],
	"properties": {
		"contact_id": {"type": ["string", "null"]},
		"confidence": {"type": ["number", "null"]},
		"reasoning": {"type": ["string", "null"]}
	}
}`)

// LinkNames searches candidates for every name, asks the completion service
// to pick one, and links confident matches to the document. Failures are
// logged and skipped. It returns the linked contact ids.
func (m *Matcher) LinkNames(ctx context.Context, userID, documentID string, names []string, dc DocumentContext) []string {
	if len(names) == 0 {
		zap.L().Info("labeling: no names extracted, skipping contact matching",
			zap.String("document_id", documentID))
		return nil
	}

	linked := make(map[string]bool)
	var out []string
	for _, name := range names {
		log := zap.L().With(zap.String("document_id", documentID), zap.String("name", name))

		candidates, err := m.dir.SearchContacts(ctx, userID, name, matchCandidates)
		if err != nil {
			log.Warn("labeling: contact search failed", zap.Error(err))
			continue
		}
		if len(candidates) == 0 {
			log.Debug("labeling: no contact candidates")
			continue
		}

		id, ok := m.Choose(ctx, name, candidates, dc)
		if !ok || linked[id] {
			continue
		}
		if err := m.dir.LinkContact(ctx, documentID, id); err != nil {
			log.Warn("labeling: link contact failed", zap.String("contact_id", id), zap.Error(err))
			continue
		}
		linked[id] = true
		out = append(out, id)
		log.Info("labeling: linked contact", zap.String("contact_id", id))
	}

	zap.L().Info("labeling: contact matching done",
		zap.String("document_id", documentID),
		zap.Int("names", len(names)),
		zap.Int("linked", len(out)),
	)
	return out
}

// Choose picks the candidate the model is confident names the same person.
// Only ids among candidates are accepted.
func (m *Matcher) Choose(ctx context.Context, name string, candidates []model.Contact, dc DocumentContext) (string, bool) {
	if m.llm == nil || len(candidates) == 0 {
		return "", false
	}

	temp := 0.1
	var ans matchAnswer
	err := llm.CompleteJSON(ctx, m.llm, llm.Request{
		Prompt:      matchPrompt(name, candidates, dc),
		MaxTokens:   300,
		Temperature: &temp,
	}, matchSchema, &ans)
	if err != nil {
		zap.L().Warn("labeling: contact match failed", zap.String("name", name), zap.Error(err))
		return "", false
	}

	id := strings.TrimSpace(ans.ContactID)
	if ans.Confidence < matchThreshold || id == "" || strings.EqualFold(id, "none") {
		zap.L().Debug("labeling: no confident match",
			zap.String("name", name),
			zap.Float64("confidence", ans.Confidence),
		)
		return "", false
	}
	for _, c := range candidates {
		if c.ID == id {
			return id, true
		}
	}
	zap.L().Warn("labeling: model chose an unknown contact", zap.String("name", name), zap.String("contact_id", id))
	return "", false
}

func matchPrompt(name string, candidates []model.Contact, dc DocumentContext) string {
	var list strings.Builder
	for i, c := range candidates {
		if i > 0 {
			list.WriteString("\n")
		}
		fmt.Fprintf(&list, "Candidate %d:\n  ID: %s\n  Name: %s %s\n", i+1, c.ID, c.FirstName, c.LastName)
		if c.Email != "" {
			fmt.Fprintf(&list, "  Email: %s\n", c.Email)
		}
		if c.Phone != "" {
			fmt.Fprintf(&list, "  Phone: %s\n", c.Phone)
		}
		if c.Company != "" {
			fmt.Fprintf(&list, "  Company: %s\n", c.Company)
		}
		if c.JobTitle != "" {
			fmt.Fprintf(&list, "  Job Title: %s\n", c.JobTitle)
		}
		if loc := strings.Trim(c.AddressCity+", "+c.AddressState, ", "); loc != "" {
			fmt.Fprintf(&list, "  Location: %s\n", loc)
		}
		if c.DateOfBirth != "" {
			fmt.Fprintf(&list, "  Date of Birth: %s\n", c.DateOfBirth)
		}
		if c.PlaceOfBirth != "" {
			fmt.Fprintf(&list, "  Place of Birth: %s\n", c.PlaceOfBirth)
		}
	}

	var docInfo strings.Builder
	if dc.DateOfBirth != "" {
		fmt.Fprintf(&docInfo, "- Date of birth: %s\n", dc.DateOfBirth)
	}
	if dc.PlaceOfBirth != "" {
		fmt.Fprintf(&docInfo, "- Place of birth: %s\n", dc.PlaceOfBirth)
	}
	if len(dc.Addresses) > 0 {
		fmt.Fprintf(&docInfo, "- Addresses: %s\n", strings.Join(dc.Addresses, "; "))
	}
	docSection := ""
	if docInfo.Len() > 0 {
		docSection = "\n**Document context:**\n" + docInfo.String()
	}

	return fmt.Sprintf(`You are an expert at matching person names from documents to database contacts.

**Extracted name from document:** %q
%s
**Available contact candidates:**
%s
**Your task:**
1. Determine which candidate (if any) best matches the extracted name
2. Consider:
   - Name similarity (exact match, nicknames, spelling variations)
   - If multiple candidates have similar names, context clues (company, location, date of birth) may help
3. Be conservative - only match if you're confident (>= 0.8 certainty)
4. If unsure or no good match, return "none"

**Response format (JSON only, no explanation):**
{
  "contact_id": "candidate-id-here or 'none'",
  "confidence": 0.95,
  "reasoning": "Brief explanation of why this is the best match"
}`, name, docSection, list.String())
}
