package store

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kairo-crm/intake/internal/model"
	"github.com/kairo-crm/intake/internal/reconcile"
)

func TestNameTokens(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"Ana  Gómez", []string{"Ana", "Gómez"}},
		{"J. R. Tolkien", []string{"Tolkien"}},
		{"50%_off", []string{`50\%\_off`}},
		{"  ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, nameTokens(tt.in))
		})
	}
}

func TestSearchContacts_NoTokensSkipsQuery(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	got, err := s.SearchContacts(context.Background(), "u1", "A B", 5)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertContact(t *testing.T) {
	_, mock := newMockPostgresStore(t)

	budget := 250000.0
	fields := &model.ContactFields{
		FirstName: "Ana",
		LastName:  "Gomez",
		BudgetMax: &budget,
		Tags:      []string{"vip"},
	}

	mock.ExpectExec(`INSERT INTO "contacts" \("id", "user_id", "first_name", "last_name", "budget_max", "tags"\) VALUES \(\$1, \$2, \$3, \$4, \$5, \$6\)`).
		WithArgs(pgxmock.AnyArg(), "u1", "Ana", "Gomez", 250000.0, []string{"vip"}).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	id, err := insertContact(context.Background(), mock, "u1", fields)
	require.NoError(t, err)
	assert.Len(t, id, 36)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateContact_FillsEmptyColumns(t *testing.T) {
	_, mock := newMockPostgresStore(t)

	fields := &model.ContactFields{
		FirstName:   "Ana",
		Phone:       "+34 600 000 000",
		DateOfBirth: "1980-05-01",
	}
	dob := time.Date(1980, 5, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE "contacts" SET "first_name" = CASE WHEN "first_name" IS NULL OR "first_name" = '' THEN \$1 ELSE "first_name" END, ` +
		`"phone" = CASE WHEN "phone" IS NULL OR "phone" = '' THEN \$2 ELSE "phone" END, ` +
		`"date_of_birth" = COALESCE\("date_of_birth", \$3\), "updated_at" = now\(\) WHERE "id" = \$4 AND "user_id" = \$5`).
		WithArgs("Ana", "+34 600 000 000", dob, "c1", "u1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, updateContact(context.Background(), mock, "u1", "c1", fields, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateContact_OverwriteListedFields(t *testing.T) {
	_, mock := newMockPostgresStore(t)

	fields := &model.ContactFields{FirstName: "Ana", Phone: "+34 611", Company: "Acme"}

	mock.ExpectExec(`UPDATE "contacts" SET "phone" = \$1, "updated_at" = now\(\) WHERE "id" = \$2 AND "user_id" = \$3`).
		WithArgs("+34 611", "c1", "u1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := updateContact(context.Background(), mock, "u1", "c1", fields, []model.Field{model.FieldPhone, model.FieldJobTitle})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateContact_NothingToWrite(t *testing.T) {
	_, mock := newMockPostgresStore(t)

	err := updateContact(context.Background(), mock, "u1", "c1", &model.ContactFields{FirstName: "Ana"}, []model.Field{model.FieldEmail})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateContact_Missing(t *testing.T) {
	_, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE "contacts"`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := updateContact(context.Background(), mock, "u1", "gone", &model.ContactFields{Email: "a@b.es"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "contact gone not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinRow_CommitsRowWrites(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "contacts"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE contact_import_rows`).
		WithArgs("imported", "created", pgxmock.AnyArg(), nil, "r1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err := s.WithinRow(context.Background(), func(ctx context.Context, tx reconcile.RowTx) error {
		id, err := tx.CreateContact(ctx, "u1", &model.ContactFields{FirstName: "Ana", LastName: "Gomez"})
		if err != nil {
			return err
		}
		return tx.RecordResult(ctx, "r1", model.RowOutcome{Status: model.ResultImported, Action: model.ActionCreated, ContactID: id})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinRow_SettledRowRollsBackContact(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "contacts"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE contact_import_rows[\s\S]+WHERE id = \$5 AND result_status IS NULL`).
		WithArgs("imported", "created", pgxmock.AnyArg(), nil, "r1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := s.WithinRow(context.Background(), func(ctx context.Context, tx reconcile.RowTx) error {
		id, err := tx.CreateContact(ctx, "u1", &model.ContactFields{FirstName: "Ana", LastName: "Gomez"})
		if err != nil {
			return err
		}
		return tx.RecordResult(ctx, "r1", model.RowOutcome{Status: model.ResultImported, Action: model.ActionCreated, ContactID: id})
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, reconcile.ErrRowSettled)
	assert.NoError(t, mock.ExpectationsWereMet())
}
