// Package reconcile turns an uploaded contact table into analyzed import rows
// and applies reviewed rows to the contact store.
//
// Analysis maps headers to canonical fields, normalizes typed values, deduces
// missing roles and matches each row against the user's existing contacts.
// Execution creates, enriches, overwrites or skips contacts row by row.
package reconcile

import (
	"strings"

	"github.com/kairo-crm/intake/internal/model"
)

// MatchKind names the signal that produced a match.
type MatchKind string

const (
	MatchEmail MatchKind = "email"
	MatchPhone MatchKind = "phone"
	MatchName  MatchKind = "name"
)

// Match confidences, in priority order.
const (
	ConfidenceEmail = 0.95
	ConfidencePhone = 0.90
	ConfidenceName  = 0.75
)

// Match is an existing contact found for an import row.
type Match struct {
	Contact    *model.Contact
	Kind       MatchKind
	Confidence float64
}

// MatchingIndex looks up existing contacts by lower-cased email, normalized
// phone and lower-cased "first last". It is built once per analysis run and
// never mutated afterwards.
type MatchingIndex struct {
	byEmail map[string]*model.Contact
	byPhone map[string]*model.Contact
	byName  map[string]*model.Contact
	size    int
}

// NewMatchingIndex indexes contacts. When several contacts share a key the
// first one wins, so callers pass contacts oldest first.
func NewMatchingIndex(contacts []model.Contact) *MatchingIndex {
	ix := &MatchingIndex{
		byEmail: make(map[string]*model.Contact, len(contacts)),
		byPhone: make(map[string]*model.Contact, len(contacts)),
		byName:  make(map[string]*model.Contact, len(contacts)),
		size:    len(contacts),
	}
	for i := range contacts {
		c := &contacts[i]
		put(ix.byEmail, emailKey(c.Email), c)
		put(ix.byPhone, NormalizePhone(c.Phone), c)
		put(ix.byName, nameKey(c.FirstName, c.LastName), c)
	}
	return ix
}

func put(m map[string]*model.Contact, key string, c *model.Contact) {
	if key == "" {
		return
	}
	if _, ok := m[key]; !ok {
		m[key] = c
	}
}

// Len is the number of indexed contacts.
func (ix *MatchingIndex) Len() int { return ix.size }

// Find returns the first hit in priority order email, phone, name. Signals
// are never combined.
func (ix *MatchingIndex) Find(f *model.ContactFields) (Match, bool) {
	if f == nil {
		return Match{}, false
	}
	if k := emailKey(f.Email); k != "" {
		if c, ok := ix.byEmail[k]; ok {
			return Match{Contact: c, Kind: MatchEmail, Confidence: ConfidenceEmail}, true
		}
	}
	if k := NormalizePhone(f.Phone); k != "" {
		if c, ok := ix.byPhone[k]; ok {
			return Match{Contact: c, Kind: MatchPhone, Confidence: ConfidencePhone}, true
		}
	}
	if f.FirstName != "" && f.LastName != "" {
		if c, ok := ix.byName[nameKey(f.FirstName, f.LastName)]; ok {
			return Match{Contact: c, Kind: MatchName, Confidence: ConfidenceName}, true
		}
	}
	return Match{}, false
}

// NormalizePhone keeps digits and '+'.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if (r >= '0' && r <= '9') || r == '+' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func nameKey(first, last string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last)))
}
