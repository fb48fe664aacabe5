package reconcile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kairo-crm/intake/internal/model"
)

func TestAnalyze_SingleNewRow(t *testing.T) {
	headers := []string{"Nombre", "Apellido", "Correo"}
	rows := []map[string]string{{"Nombre": "Ana", "Apellido": "Gomez", "Correo": "ana@x.com"}}

	mapping := NewColumnMapper(nil, nil).Map(context.Background(), headers, rows)
	a := NewAnalyzer(nil)
	got := a.Analyze(context.Background(), rows, mapping, NewMatchingIndex(nil))

	require.Len(t, got.Rows, 1)
	row := got.Rows[0]
	assert.Equal(t, 1, row.RowNumber)
	assert.Equal(t, model.DispositionNew, row.Disposition)
	assert.Equal(t, &model.ContactFields{FirstName: "Ana", LastName: "Gomez", Email: "ana@x.com"}, row.MappedData)
	assert.Empty(t, row.MatchedContactID)
	assert.Equal(t, model.ImportStats{TotalRows: 1, NewCount: 1}, got.Stats)
}

func TestAnalyze_DropsRowsWithoutNames(t *testing.T) {
	mapping := Mapping{"F": model.FieldFirstName, "L": model.FieldLastName}
	rows := []map[string]string{
		{"F": "Ana", "L": ""},
		{"F": "", "L": "Gomez"},
		{"F": "Luis", "L": "Perez"},
	}
	got := NewAnalyzer(nil).Analyze(context.Background(), rows, mapping, NewMatchingIndex(nil))
	require.Len(t, got.Rows, 1)
	assert.Equal(t, 3, got.Rows[0].RowNumber)
	assert.Equal(t, 1, got.Stats.TotalRows)
}

func TestAnalyze_Dispositions(t *testing.T) {
	existing := []model.Contact{
		{ID: "c1", ContactFields: model.ContactFields{FirstName: "Ana", LastName: "Gomez", Email: "ana@x.com", Company: "Acme", Role: model.RoleBuyer}},
		{ID: "c2", ContactFields: model.ContactFields{FirstName: "Luis", LastName: "Perez", Phone: "600 111 222", Company: "Globex", AddressCity: "Madrid"}},
	}
	mapping := Mapping{
		"first": model.FieldFirstName, "last": model.FieldLastName, "email": model.FieldEmail,
		"phone": model.FieldPhone, "company": model.FieldCompany, "city": model.FieldAddressCity,
		"role": model.FieldRole,
	}
	rows := []map[string]string{
		// email match, same company, no role in file
		{"first": "Ana", "last": "Gomez", "email": "ANA@x.com", "company": " acme "},
		// phone match, company differs
		{"first": "Luis", "last": "P.", "phone": "600 111 222", "company": "Initech", "city": "Madrid"},
		// no match
		{"first": "Eva", "last": "Diaz", "email": "eva@y.com"},
		// name match, role from file differs
		{"first": "ana", "last": "gomez", "role": "seller"},
	}
	got := NewAnalyzer(NewRoleDeducer(nil, 20)).Analyze(context.Background(), rows, mapping, NewMatchingIndex(existing))
	require.Len(t, got.Rows, 4)

	assert.Equal(t, model.DispositionDuplicate, got.Rows[0].Disposition)
	assert.Equal(t, "c1", got.Rows[0].MatchedContactID)
	assert.InDelta(t, 0.95, got.Rows[0].MatchConfidence, 1e-9)
	assert.Empty(t, got.Rows[0].Conflicts, "deduced role is not a conflict")
	assert.Equal(t, model.RoleOther, got.Rows[0].MappedData.Role)

	assert.Equal(t, model.DispositionConflict, got.Rows[1].Disposition)
	assert.Equal(t, "c2", got.Rows[1].MatchedContactID)
	assert.InDelta(t, 0.90, got.Rows[1].MatchConfidence, 1e-9)
	assert.Equal(t, []model.Conflict{{Field: model.FieldCompany, Existing: "Globex", New: "Initech"}}, got.Rows[1].Conflicts)

	assert.Equal(t, model.DispositionNew, got.Rows[2].Disposition)

	assert.Equal(t, model.DispositionConflict, got.Rows[3].Disposition)
	assert.InDelta(t, 0.75, got.Rows[3].MatchConfidence, 1e-9)
	assert.Equal(t, []model.Conflict{{Field: model.FieldRole, Existing: "buyer", New: "seller"}}, got.Rows[3].Conflicts)

	assert.Equal(t, model.ImportStats{TotalRows: 4, NewCount: 1, DuplicateCount: 1, ConflictCount: 2}, got.Stats)
}

func TestDetectConflicts_OnlyBothSidesSet(t *testing.T) {
	incoming := &model.ContactFields{Phone: "+34 600", Company: "Acme", Notes: "new note", DateOfBirth: "2000-01-15"}
	existing := &model.ContactFields{Company: "ACME", Notes: "old note", DateOfBirth: "1999-12-31", JobTitle: "CEO"}
	got := DetectConflicts(incoming, existing, true)
	assert.Equal(t, []model.Conflict{
		{Field: model.FieldNotes, Existing: "old note", New: "new note"},
		{Field: model.FieldDateOfBirth, Existing: "1999-12-31", New: "2000-01-15"},
	}, got)
}

func TestRoute(t *testing.T) {
	tests := []struct {
		mode  model.ImportMode
		stats model.ImportStats
		want  model.JobStatus
	}{
		{model.ModeTurbo, model.ImportStats{}, model.StatusProcessing},
		{model.ModeTurbo, model.ImportStats{ConflictCount: 3}, model.StatusProcessing},
		{model.ModeSafe, model.ImportStats{NewCount: 5}, model.StatusPendingReview},
		{model.ModeSafe, model.ImportStats{DuplicateCount: 1}, model.StatusPendingReview},
		{model.ModeBalanced, model.ImportStats{NewCount: 4}, model.StatusProcessing},
		{model.ModeBalanced, model.ImportStats{DuplicateCount: 2}, model.StatusProcessing},
		{model.ModeBalanced, model.ImportStats{ConflictCount: 1}, model.StatusPendingReview},
		{"yolo", model.ImportStats{}, model.StatusPendingReview},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			assert.Equal(t, tt.want, Route(tt.mode, tt.stats))
		})
	}
}
