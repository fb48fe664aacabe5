package reconcile

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/kairo-crm/intake/internal/model"
)

// Analysis is the result of one analysis run.
type Analysis struct {
	Rows  []model.ImportRow
	Stats model.ImportStats
}

// Analyzer classifies mapped rows against a MatchingIndex.
type Analyzer struct {
	roles *RoleDeducer
}

// NewAnalyzer creates an analyzer. roles may be nil to skip role deduction.
func NewAnalyzer(roles *RoleDeducer) *Analyzer {
	return &Analyzer{roles: roles}
}

// Analyze maps every row, drops rows without both names, deduces missing
// roles and assigns each remaining row its disposition. rows[i] is row
// number i+1.
func (a *Analyzer) Analyze(ctx context.Context, rows []map[string]string, mapping Mapping, index *MatchingIndex) Analysis {
	type mapped struct {
		number       int
		raw          map[string]string
		fields       *model.ContactFields
		roleFromFile bool
	}

	kept := make([]mapped, 0, len(rows))
	for i, raw := range rows {
		f := ApplyMapping(raw, mapping)
		if f.FirstName == "" || f.LastName == "" {
			zap.L().Debug("reconcile: dropping row without first and last name", zap.Int("row", i+1))
			continue
		}
		kept = append(kept, mapped{number: i + 1, raw: raw, fields: f, roleFromFile: f.Role.Valid()})
	}

	if a.roles != nil && len(kept) > 0 {
		candidates := make([]roleCandidate, len(kept))
		for i, m := range kept {
			candidates[i] = roleCandidate{fields: m.fields, raw: m.raw}
		}
		a.roles.Deduce(ctx, candidates)
	}

	out := Analysis{Rows: make([]model.ImportRow, 0, len(kept))}
	for _, m := range kept {
		row := model.ImportRow{
			RowNumber:   m.number,
			RawData:     m.raw,
			MappedData:  m.fields,
			Disposition: model.DispositionNew,
		}
		if match, ok := index.Find(m.fields); ok {
			row.MatchedContactID = match.Contact.ID
			row.MatchConfidence = match.Confidence
			row.Conflicts = DetectConflicts(m.fields, &match.Contact.ContactFields, m.roleFromFile)
			row.Disposition = model.DispositionDuplicate
			if len(row.Conflicts) > 0 {
				row.Disposition = model.DispositionConflict
			}
		}
		out.Rows = append(out.Rows, row)
	}
	out.Stats = CountDispositions(out.Rows)

	zap.L().Info("reconcile: analysis complete",
		zap.Int("input_rows", len(rows)),
		zap.Int("rows", out.Stats.TotalRows),
		zap.Int("new", out.Stats.NewCount),
		zap.Int("duplicate", out.Stats.DuplicateCount),
		zap.Int("conflict", out.Stats.ConflictCount),
	)
	return out
}

// DetectConflicts lists the conflict fields set on both sides whose trimmed,
// lower-cased values differ. A deduced role is a guess, so it is only
// compared when compareRole is set.
func DetectConflicts(incoming, existing *model.ContactFields, compareRole bool) []model.Conflict {
	var out []model.Conflict
	for _, f := range model.ConflictFields {
		if f == model.FieldRole && !compareRole {
			continue
		}
		nv, ev := incoming.Text(f), existing.Text(f)
		if nv == "" || ev == "" {
			continue
		}
		if strings.ToLower(strings.TrimSpace(nv)) != strings.ToLower(strings.TrimSpace(ev)) {
			out = append(out, model.Conflict{Field: f, Existing: ev, New: nv})
		}
	}
	return out
}

// CountDispositions builds the analysis stats of rows.
func CountDispositions(rows []model.ImportRow) model.ImportStats {
	s := model.ImportStats{TotalRows: len(rows)}
	for _, r := range rows {
		switch r.Disposition {
		case model.DispositionNew:
			s.NewCount++
		case model.DispositionDuplicate:
			s.DuplicateCount++
		case model.DispositionConflict:
			s.ConflictCount++
		}
	}
	return s
}
