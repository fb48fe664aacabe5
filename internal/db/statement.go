package db

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// ColumnKind selects what "empty" means for a conditional fill.
type ColumnKind int

const (
	// TextColumn is empty when NULL or ''.
	TextColumn ColumnKind = iota
	// ValueColumn is empty when NULL (numbers, dates).
	ValueColumn
	// ArrayColumn is empty when NULL or zero-length.
	ArrayColumn
)

// Update builds a parameterized UPDATE statement. Identifiers are sanitized;
// values are always bound as arguments.
type Update struct {
	table     string
	sets      []string
	where     []string
	returning []string
	args      []any
}

// NewUpdate starts an UPDATE against table.
func NewUpdate(table string) *Update {
	return &Update{table: table}
}

func (u *Update) bind(v any) string {
	u.args = append(u.args, v)
	return fmt.Sprintf("$%d", len(u.args))
}

// Set assigns val to col unconditionally.
func (u *Update) Set(col string, val any) *Update {
	u.sets = append(u.sets, fmt.Sprintf("%s = %s", pgx.Identifier{col}.Sanitize(), u.bind(val)))
	return u
}

// SetExpr assigns a raw SQL expression (e.g. now()) to col.
func (u *Update) SetExpr(col, expr string) *Update {
	u.sets = append(u.sets, fmt.Sprintf("%s = %s", pgx.Identifier{col}.Sanitize(), expr))
	return u
}

// Fill assigns val to col only when the stored value is empty.
func (u *Update) Fill(col string, val any, kind ColumnKind) *Update {
	c := pgx.Identifier{col}.Sanitize()
	p := u.bind(val)
	var clause string
	switch kind {
	case ValueColumn:
		clause = fmt.Sprintf("%s = COALESCE(%s, %s)", c, c, p)
	case ArrayColumn:
		clause = fmt.Sprintf("%s = CASE WHEN %s IS NULL OR cardinality(%s) = 0 THEN %s ELSE %s END", c, c, c, p, c)
	default:
		clause = fmt.Sprintf("%s = CASE WHEN %s IS NULL OR %s = '' THEN %s ELSE %s END", c, c, c, p, c)
	}
	u.sets = append(u.sets, clause)
	return u
}

// Where adds an equality predicate. Predicates are ANDed.
func (u *Update) Where(col string, val any) *Update {
	u.where = append(u.where, fmt.Sprintf("%s = %s", pgx.Identifier{col}.Sanitize(), u.bind(val)))
	return u
}

// Returning appends a RETURNING clause.
func (u *Update) Returning(cols ...string) *Update {
	u.returning = append(u.returning, cols...)
	return u
}

// Len reports the number of assignments.
func (u *Update) Len() int {
	return len(u.sets)
}

// Build renders the statement and its arguments.
func (u *Update) Build() (string, []any) {
	var b strings.Builder
	b.WriteString("UPDATE ")
	b.WriteString(sanitizeTable(u.table))
	b.WriteString(" SET ")
	b.WriteString(strings.Join(u.sets, ", "))
	if len(u.where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(u.where, " AND "))
	}
	if len(u.returning) > 0 {
		b.WriteString(" RETURNING ")
		b.WriteString(quoteAndJoin(u.returning))
	}
	return b.String(), u.args
}

// InsertSQL renders INSERT INTO table (cols) VALUES ($1..$n), with an
// optional RETURNING column.
func InsertSQL(table string, cols []string, returning string) string {
	params := make([]string, len(cols))
	for i := range cols {
		params[i] = fmt.Sprintf("$%d", i+1)
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		sanitizeTable(table), quoteAndJoin(cols), strings.Join(params, ", "))
	if returning != "" {
		sql += " RETURNING " + pgx.Identifier{returning}.Sanitize()
	}
	return sql
}
