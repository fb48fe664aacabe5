package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kairo-crm/intake/internal/model"
)

func budget(v float64) *float64 { return &v }

func TestHeuristicRole(t *testing.T) {
	tests := []struct {
		name   string
		fields model.ContactFields
		raw    map[string]string
		want   model.Role
	}{
		{"keeps valid role", model.ContactFields{Role: model.RoleLandlord, Category: model.CategoryPotentialBuyer}, nil, model.RoleLandlord},
		{"category first", model.ContactFields{Category: model.CategorySignedSeller, BudgetMax: budget(500000)}, nil, model.RoleSeller},
		{"high budget buyer", model.ContactFields{BudgetMax: budget(250000)}, nil, model.RoleBuyer},
		{"min budget used when max missing", model.ContactFields{BudgetMin: budget(150000)}, nil, model.RoleBuyer},
		{"low budget tenant", model.ContactFields{BudgetMax: budget(900)}, nil, model.RoleTenant},
		{"zero budget ignored", model.ContactFields{BudgetMax: budget(0), JobTitle: "Loan Officer"}, nil, model.RoleLender},
		{"lender title", model.ContactFields{JobTitle: "Senior Mortgage Advisor"}, nil, model.RoleLender},
		{"buyer notes", model.ContactFields{Notes: "Quiere comprar en el centro"}, nil, model.RoleBuyer},
		{"seller raw cell", model.ContactFields{}, map[string]string{"Comentario": "Wants to list my flat"}, model.RoleSeller},
		{"tenant notes", model.ContactFields{Notes: "Looking for an apartment"}, nil, model.RoleTenant},
		{"landlord notes", model.ContactFields{Notes: "Has an investment portfolio"}, nil, model.RoleLandlord},
		{"default other", model.ContactFields{Notes: "met at conference"}, nil, model.RoleOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HeuristicRole(&tt.fields, tt.raw))
		})
	}
}

func TestHeuristicRole_Deterministic(t *testing.T) {
	raw := map[string]string{"a": "lease", "b": "buying", "c": "x"}
	f := model.ContactFields{}
	first := HeuristicRole(&f, raw)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, HeuristicRole(&f, raw))
	}
	assert.Equal(t, model.RoleBuyer, first)
}

func candidates(fields ...*model.ContactFields) []roleCandidate {
	out := make([]roleCandidate, len(fields))
	for i, f := range fields {
		out[i] = roleCandidate{fields: f}
	}
	return out
}

func TestRoleDeducer_ClassifierWithFallback(t *testing.T) {
	a := &model.ContactFields{FirstName: "A", LastName: "One"}
	b := &model.ContactFields{FirstName: "B", LastName: "Two", BudgetMax: budget(800)}
	c := &model.ContactFields{FirstName: "C", LastName: "Three", Role: model.RoleSeller}
	d := &model.ContactFields{FirstName: "D", LastName: "Four", JobTitle: "bank teller"}

	fake := &scriptedLLM{answers: []string{
		`{"roles": ["Buyer", "astronaut"]}`,
		`{"roles": []}`,
	}}
	NewRoleDeducer(fake, 2).Deduce(context.Background(), candidates(a, b, c, d))

	assert.Equal(t, model.RoleBuyer, a.Role)
	assert.Equal(t, model.RoleTenant, b.Role, "invalid answer falls back to heuristic")
	assert.Equal(t, model.RoleSeller, c.Role, "existing role untouched")
	assert.Equal(t, model.RoleLender, d.Role, "missing answer falls back to heuristic")
	require.Len(t, fake.prompts, 2)
	assert.Contains(t, fake.prompts[0], `"name": "A One"`)
	assert.NotContains(t, fake.prompts[0], "C Three")
}

func TestRoleDeducer_ClassifierErrorUsesHeuristic(t *testing.T) {
	a := &model.ContactFields{FirstName: "A", LastName: "One", Notes: "renting"}
	NewRoleDeducer(&scriptedLLM{err: errors.New("503")}, 0).Deduce(context.Background(), candidates(a))
	assert.Equal(t, model.RoleTenant, a.Role)
}

func TestRoleDeducer_NoClassifier(t *testing.T) {
	a := &model.ContactFields{FirstName: "A", LastName: "One"}
	NewRoleDeducer(nil, 20).Deduce(context.Background(), candidates(a))
	assert.Equal(t, model.RoleOther, a.Role)
}

func TestSummarize_TruncatesAndFilters(t *testing.T) {
	long := make([]rune, 250)
	for i := range long {
		long[i] = 'ñ'
	}
	big := string(make([]byte, 120))
	s := summarize(3, roleCandidate{
		fields: &model.ContactFields{FirstName: "Ana", LastName: "Gomez", Notes: string(long)},
		raw:    map[string]string{"short": "ok", "long": big, "empty": ""},
	})
	assert.Equal(t, 3, s.Index)
	assert.Equal(t, "Ana Gomez", s.Name)
	assert.Len(t, []rune(s.Notes), 200)
	assert.Equal(t, map[string]string{"short": "ok"}, s.RawExtra)
}
