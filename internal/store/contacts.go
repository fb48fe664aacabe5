package store

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/kairo-crm/intake/internal/db"
	"github.com/kairo-crm/intake/internal/model"
)

const contactsTable = "contacts"

// contactSelect lists contact columns in model.CanonicalFields order.
const contactSelect = `id, user_id,
	COALESCE(first_name, ''), COALESCE(last_name, ''), COALESCE(email, ''), COALESCE(phone, ''),
	COALESCE(company, ''), COALESCE(job_title, ''), COALESCE(address_street, ''), COALESCE(address_city, ''),
	COALESCE(address_state, ''), COALESCE(address_zip, ''), COALESCE(address_country, ''), COALESCE(source, ''),
	COALESCE(notes, ''), budget_min, budget_max, date_of_birth, COALESCE(place_of_birth, ''),
	COALESCE(tags, '{}'), COALESCE(role, ''), COALESCE(category, '')`

func scanContact(row pgx.Row) (model.Contact, error) {
	var (
		c   model.Contact
		dob *time.Time
	)
	err := row.Scan(&c.ID, &c.UserID,
		&c.FirstName, &c.LastName, &c.Email, &c.Phone,
		&c.Company, &c.JobTitle, &c.AddressStreet, &c.AddressCity,
		&c.AddressState, &c.AddressZip, &c.AddressCountry, &c.Source,
		&c.Notes, &c.BudgetMin, &c.BudgetMax, &dob, &c.PlaceOfBirth,
		&c.Tags, &c.Role, &c.Category,
	)
	if dob != nil {
		c.DateOfBirth = dob.Format(model.DateLayout)
	}
	return c, err
}

func collectContacts(rows pgx.Rows) ([]model.Contact, error) {
	defer rows.Close()
	var out []model.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan contact")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate contacts")
}

// ListContacts returns every contact of userID, oldest first.
func (s *PostgresStore) ListContacts(ctx context.Context, userID string) ([]model.Contact, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+contactSelect+` FROM contacts WHERE user_id = $1 ORDER BY created_at, id`,
		userID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list contacts for %s", userID)
	}
	return collectContacts(rows)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// nameTokens splits a free-text name into ILIKE-safe tokens of two or more
// characters.
func nameTokens(name string) []string {
	var out []string
	for _, tok := range strings.Fields(name) {
		tok = strings.Trim(tok, ".,;:")
		if utf8.RuneCountInString(tok) < 2 {
			continue
		}
		out = append(out, likeEscaper.Replace(tok))
	}
	return out
}

// SearchContacts returns up to limit contacts of userID whose first or last
// name contains a token of name, best covered first.
func (s *PostgresStore) SearchContacts(ctx context.Context, userID, name string, limit int) ([]model.Contact, error) {
	tokens := nameTokens(name)
	if len(tokens) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.pool.Query(ctx, `SELECT `+contactSelect+` FROM (
			SELECT c.*, (
				SELECT count(*) FROM unnest($2::text[]) AS t(tok)
				WHERE c.first_name ILIKE '%' || t.tok || '%' OR c.last_name ILIKE '%' || t.tok || '%'
			) AS hits
			FROM contacts c
			WHERE c.user_id = $1
		) ranked
		WHERE hits > 0
		ORDER BY hits DESC, created_at, id
		LIMIT $3`,
		userID, tokens, limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: search contacts for %s", userID)
	}
	return collectContacts(rows)
}

// columnKind maps a field's storage shape to the fill rule used by enrich updates.
func columnKind(f model.Field) db.ColumnKind {
	switch f.Kind() {
	case model.KindNumber, model.KindDate:
		return db.ValueColumn
	case model.KindList:
		return db.ArrayColumn
	default:
		return db.TextColumn
	}
}

// insertContact creates a contact from the set fields of f.
func insertContact(ctx context.Context, q db.Querier, userID string, f *model.ContactFields) (string, error) {
	id := uuid.New().String()
	cols := []string{"id", "user_id"}
	args := []any{id, userID}
	for _, field := range f.Present() {
		v, ok := f.Value(field)
		if !ok {
			continue
		}
		cols = append(cols, string(field))
		args = append(args, v)
	}
	if _, err := q.Exec(ctx, db.InsertSQL(contactsTable, cols, ""), args...); err != nil {
		return "", eris.Wrap(err, "postgres: insert contact")
	}
	return id, nil
}

// updateContact fills empty columns from f, or with overwrite set replaces
// exactly those columns for which f has a value.
func updateContact(ctx context.Context, q db.Querier, userID, contactID string, f *model.ContactFields, overwrite []model.Field) error {
	u := db.NewUpdate(contactsTable)
	if len(overwrite) == 0 {
		for _, field := range f.Present() {
			if v, ok := f.Value(field); ok {
				u.Fill(string(field), v, columnKind(field))
			}
		}
	} else {
		for _, field := range overwrite {
			if v, ok := f.Value(field); ok {
				u.Set(string(field), v)
			}
		}
	}
	if u.Len() == 0 {
		return nil
	}
	u.SetExpr("updated_at", "now()").Where("id", contactID).Where("user_id", userID)

	sql, args := u.Build()
	tag, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: update contact %s", contactID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: contact %s not found", contactID)
	}
	return nil
}
