package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kairo-crm/intake/internal/model"
)

func contact(id, first, last, email, phone string) model.Contact {
	return model.Contact{ID: id, UserID: "u1", ContactFields: model.ContactFields{
		FirstName: first, LastName: last, Email: email, Phone: phone,
	}}
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "+34600111222", NormalizePhone("+34 600-111 (222)"))
	assert.Equal(t, "", NormalizePhone("n/a"))
}

func TestMatchingIndex_Priority(t *testing.T) {
	ix := NewMatchingIndex([]model.Contact{
		contact("c-email", "Luis", "Perez", "Ana@X.com", ""),
		contact("c-phone", "Marta", "Ruiz", "", "+34 600 111 222"),
		contact("c-name", "Ana", "Gomez", "", ""),
	})
	assert.Equal(t, 3, ix.Len())

	tests := []struct {
		name   string
		fields model.ContactFields
		wantID string
		kind   MatchKind
		conf   float64
	}{
		{"email beats phone and name", model.ContactFields{FirstName: "Ana", LastName: "Gomez", Email: "ana@x.com", Phone: "+34600111222"}, "c-email", MatchEmail, 0.95},
		{"phone beats name", model.ContactFields{FirstName: "Ana", LastName: "Gomez", Email: "other@x.com", Phone: "+34-600-111-222"}, "c-phone", MatchPhone, 0.90},
		{"name", model.ContactFields{FirstName: " ANA", LastName: "gomez "}, "c-name", MatchName, 0.75},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := ix.Find(&tt.fields)
			require.True(t, ok)
			assert.Equal(t, tt.wantID, m.Contact.ID)
			assert.Equal(t, tt.kind, m.Kind)
			assert.InDelta(t, tt.conf, m.Confidence, 1e-9)
		})
	}
}

func TestMatchingIndex_NoMatch(t *testing.T) {
	ix := NewMatchingIndex(nil)
	_, ok := ix.Find(&model.ContactFields{FirstName: "Ana", LastName: "Gomez", Email: "ana@x.com"})
	assert.False(t, ok)
	_, ok = ix.Find(nil)
	assert.False(t, ok)
}

func TestMatchingIndex_FirstContactWins(t *testing.T) {
	ix := NewMatchingIndex([]model.Contact{
		contact("older", "Ana", "Gomez", "ana@x.com", ""),
		contact("newer", "Ana", "Gomez", "ana@x.com", ""),
	})
	m, ok := ix.Find(&model.ContactFields{Email: "ana@x.com"})
	require.True(t, ok)
	assert.Equal(t, "older", m.Contact.ID)
}

func TestMatchingIndex_BlankKeysIgnored(t *testing.T) {
	ix := NewMatchingIndex([]model.Contact{contact("c1", "", "", "", "")})
	_, ok := ix.Find(&model.ContactFields{FirstName: "Ana", LastName: "Gomez"})
	assert.False(t, ok)
}
