package storage

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/gyanasetu/upload-relay/internal/domain"
)

// MockStore implements Store for testing
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Upload(ctx context.Context, req *UploadRequest) (*domain.Object, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Object), args.Error(1)
}

func (m *MockStore) GrantPublicRead(ctx context.Context, fileID string) error {
	args := m.Called(ctx, fileID)
	return args.Error(0)
}

func (m *MockStore) Remove(ctx context.Context, fileID string) error {
	args := m.Called(ctx, fileID)
	return args.Error(0)
}

func (m *MockStore) Describe(ctx context.Context, fileID string) (*domain.Object, error) {
	args := m.Called(ctx, fileID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Object), args.Error(1)
}

// Links uses the Drive URL templates so tests see realistic values without
// setting an expectation for a pure function.
func (m *MockStore) Links(fileID string) domain.Links {
	return DriveURLs(fileID)
}
