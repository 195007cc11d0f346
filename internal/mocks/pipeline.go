package mocks

import (
	"context"

	"github.com/openshelf/openshelf/internal/books"
	"github.com/openshelf/openshelf/internal/db"
	"github.com/openshelf/openshelf/internal/provider"
	"github.com/stretchr/testify/mock"
)

// MockFetcher is a mock implementation of the backfill.Fetcher interface
type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) Fetch(ctx context.Context, sourceID string) (*provider.Document, error) {
	args := m.Called(ctx, sourceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.Document), args.Error(1)
}

// MockUpserter is a mock implementation of the backfill.Upserter interface
type MockUpserter struct {
	mock.Mock
}

func (m *MockUpserter) Upsert(ctx context.Context, book *books.Book) (*books.UpsertResult, error) {
	args := m.Called(ctx, book)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*books.UpsertResult), args.Error(1)
}

// MockAlerter is a mock implementation of the backfill.Alerter interface
type MockAlerter struct {
	mock.Mock
}

func (m *MockAlerter) TaskExhausted(ctx context.Context, task *db.Task, errMsg string) {
	m.Called(ctx, task, errMsg)
}
