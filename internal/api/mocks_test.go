package api

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vietguard/vietguard-api/internal/domain"
	"github.com/vietguard/vietguard-api/internal/platform/scanapi"
	"github.com/vietguard/vietguard-api/internal/service"
)

// MockMemberService is a testify mock of service.MemberService.
type MockMemberService struct {
	mock.Mock
}

func (m *MockMemberService) SendOTP(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}

func (m *MockMemberService) VerifyOTP(
	ctx context.Context,
	email, code string,
	addr domain.ClientAddress,
) (*domain.Verification, error) {
	args := m.Called(ctx, email, code, addr)
	v, _ := args.Get(0).(*domain.Verification)
	return v, args.Error(1)
}

func (m *MockMemberService) SubmitUserInfo(
	ctx context.Context,
	email, code string,
	info domain.UserInfo,
) (*domain.Verification, error) {
	args := m.Called(ctx, email, code, info)
	v, _ := args.Get(0).(*domain.Verification)
	return v, args.Error(1)
}

func (m *MockMemberService) CreateMemberWithServices(
	ctx context.Context,
	email string,
	services []domain.ServiceType,
) (*service.MemberInfo, error) {
	args := m.Called(ctx, email, services)
	info, _ := args.Get(0).(*service.MemberInfo)
	return info, args.Error(1)
}

func (m *MockMemberService) GetMemberInfo(ctx context.Context, email string) (*service.MemberInfo, error) {
	args := m.Called(ctx, email)
	info, _ := args.Get(0).(*service.MemberInfo)
	return info, args.Error(1)
}

func (m *MockMemberService) ListVerifications(ctx context.Context) ([]domain.VerificationRecord, error) {
	args := m.Called(ctx)
	records, _ := args.Get(0).([]domain.VerificationRecord)
	return records, args.Error(1)
}

// MockTaskService is a testify mock of service.TaskService.
type MockTaskService struct {
	mock.Mock
}

func (m *MockTaskService) CreateTask(ctx context.Context, email string, upload service.Upload) (*domain.ScanTask, error) {
	args := m.Called(ctx, email, upload)
	task, _ := args.Get(0).(*domain.ScanTask)
	return task, args.Error(1)
}

func (m *MockTaskService) SubmitDirect(
	ctx context.Context,
	memberName string,
	upload service.Upload,
) (*scanapi.SubmitResult, error) {
	args := m.Called(ctx, memberName, upload)
	res, _ := args.Get(0).(*scanapi.SubmitResult)
	return res, args.Error(1)
}

func (m *MockTaskService) CanScan(ctx context.Context, email string) (*service.Admission, error) {
	args := m.Called(ctx, email)
	a, _ := args.Get(0).(*service.Admission)
	return a, args.Error(1)
}

func (m *MockTaskService) GetTask(ctx context.Context, id uuid.UUID) (*domain.ScanTask, error) {
	args := m.Called(ctx, id)
	task, _ := args.Get(0).(*domain.ScanTask)
	return task, args.Error(1)
}

// fakeDownloads implements Downloads with a function field.
type fakeDownloads struct {
	RedeemFn func(ctx context.Context, token string) (*scanapi.Artifact, error)
}

func (f *fakeDownloads) Redeem(ctx context.Context, token string) (*scanapi.Artifact, error) {
	if f.RedeemFn != nil {
		return f.RedeemFn(ctx, token)
	}
	return nil, service.ErrDownloadNotFound
}

// fakeHistory implements TaskHistory with a function field.
type fakeHistory struct {
	ListFn func(ctx context.Context, taskID uuid.UUID) ([]domain.TaskHistory, error)
}

func (f *fakeHistory) List(ctx context.Context, taskID uuid.UUID) ([]domain.TaskHistory, error) {
	if f.ListFn != nil {
		return f.ListFn(ctx, taskID)
	}
	return nil, nil
}

// fakeAccessLogs implements AccessLogs with function fields.
type fakeAccessLogs struct {
	RecordFn func(ctx context.Context, addr domain.ClientAddress) (*domain.AccessLog, error)
	ListFn   func(ctx context.Context, q domain.AccessLogQuery) (domain.AccessLogPage, error)
	CountFn  func(ctx context.Context) (int, error)
}

func (f *fakeAccessLogs) RecordAccess(ctx context.Context, addr domain.ClientAddress) (*domain.AccessLog, error) {
	return f.RecordFn(ctx, addr)
}

func (f *fakeAccessLogs) List(ctx context.Context, q domain.AccessLogQuery) (domain.AccessLogPage, error) {
	return f.ListFn(ctx, q)
}

func (f *fakeAccessLogs) Count(ctx context.Context) (int, error) {
	return f.CountFn(ctx)
}

// formFile describes the file part of a multipart request.
type formFile struct {
	field   string
	name    string
	content string
}

// multipartRequest builds a multipart POST to path.
func multipartRequest(t *testing.T, path string, fields map[string]string, file *formFile) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if file != nil {
		fw, err := mw.CreateFormFile(file.field, file.name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(file.content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// serveRoute registers handler under pattern on a fresh chi router and
// serves req, so path parameters resolve as in production.
func serveRoute(method, pattern string, handler http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Method(method, pattern, handler)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}
