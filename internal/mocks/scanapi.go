package mocks

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/stretchr/testify/mock"
	"github.com/vietguard/vietguard-api/internal/platform/scanapi"
)

// TestifyMockScanAPI mocks the scanapi.Client surface for use with testify/mock
type TestifyMockScanAPI struct {
	mock.Mock
}

func rawArg(args mock.Arguments) json.RawMessage {
	if raw, ok := args.Get(0).(json.RawMessage); ok {
		return raw
	}
	if s, ok := args.Get(0).(string); ok {
		return json.RawMessage(s)
	}
	return nil
}

// Submit is a mock implementation of scanapi.Client.Submit
func (m *TestifyMockScanAPI) Submit(ctx context.Context, r scanapi.SubmitRequest) (*scanapi.SubmitResult, error) {
	args := m.Called(ctx, r)
	if res, ok := args.Get(0).(*scanapi.SubmitResult); ok {
		return res, args.Error(1)
	}
	return nil, args.Error(1)
}

// GetStatus is a mock implementation of scanapi.Client.GetStatus
func (m *TestifyMockScanAPI) GetStatus(ctx context.Context, id string) (string, error) {
	args := m.Called(ctx, id)
	return args.String(0), args.Error(1)
}

// GetStatusResponse is a mock implementation of scanapi.Client.GetStatusResponse
func (m *TestifyMockScanAPI) GetStatusResponse(ctx context.Context, id string) (json.RawMessage, error) {
	args := m.Called(ctx, id)
	return rawArg(args), args.Error(1)
}

// GetArtifact is a mock implementation of scanapi.Client.GetArtifact
func (m *TestifyMockScanAPI) GetArtifact(ctx context.Context, id string) (*scanapi.Artifact, error) {
	args := m.Called(ctx, id)
	if a, ok := args.Get(0).(*scanapi.Artifact); ok {
		return a, args.Error(1)
	}
	return nil, args.Error(1)
}

// CreateMember is a mock implementation of scanapi.Client.CreateMember
func (m *TestifyMockScanAPI) CreateMember(ctx context.Context, r scanapi.CreateMemberRequest) (json.RawMessage, error) {
	args := m.Called(ctx, r)
	return rawArg(args), args.Error(1)
}

// ListMembers is a mock implementation of scanapi.Client.ListMembers
func (m *TestifyMockScanAPI) ListMembers(ctx context.Context, query url.Values) (json.RawMessage, error) {
	args := m.Called(ctx, query)
	return rawArg(args), args.Error(1)
}

// AssignServices is a mock implementation of scanapi.Client.AssignServices
func (m *TestifyMockScanAPI) AssignServices(ctx context.Context, r scanapi.AssignServicesRequest) (json.RawMessage, error) {
	args := m.Called(ctx, r)
	return rawArg(args), args.Error(1)
}

// GetHistory is a mock implementation of scanapi.Client.GetHistory
func (m *TestifyMockScanAPI) GetHistory(ctx context.Context, startTime, endTime string) (json.RawMessage, error) {
	args := m.Called(ctx, startTime, endTime)
	return rawArg(args), args.Error(1)
}

// ExportServiceUsageLogs is a mock implementation of scanapi.Client.ExportServiceUsageLogs
func (m *TestifyMockScanAPI) ExportServiceUsageLogs(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	if b, ok := args.Get(0).([]byte); ok {
		return b, args.Error(1)
	}
	return nil, args.Error(1)
}
