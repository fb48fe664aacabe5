package labeling

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/kairo-crm/intake/internal/llm"
	"github.com/kairo-crm/intake/internal/model"
)

// --- Completer Mock ---

type mockCompleter struct {
	mock.Mock
}

func (m *mockCompleter) Complete(ctx context.Context, req llm.Request) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

// --- Directory Mock ---

type mockDirectory struct {
	mock.Mock
}

func (m *mockDirectory) SearchContacts(ctx context.Context, userID, name string, limit int) ([]model.Contact, error) {
	args := m.Called(ctx, userID, name, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Contact), args.Error(1)
}

func (m *mockDirectory) LinkContact(ctx context.Context, documentID, contactID string) error {
	args := m.Called(ctx, documentID, contactID)
	return args.Error(0)
}
