package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/vietguard/vietguard-api/internal/mocks"
	"github.com/vietguard/vietguard-api/internal/platform/scanapi"
)

func TestExternalHandler_CreateMember(t *testing.T) {
	scanner := &mocks.TestifyMockScanAPI{}
	h := NewExternalHandler(scanner, nil)
	scanner.On("CreateMember", mock.Anything, scanapi.CreateMemberRequest{
		Name:     "Guest1",
		Services: []scanapi.ServiceAssignment{{ServiceType: 4}},
	}).Return(`{"code":"0","data":{"id":9}}`, nil)

	w := httptest.NewRecorder()
	h.CreateMember(w, jsonRequest(t, http.MethodPost, "/api/external/members",
		CreateExternalMemberRequest{Name: "Guest1", Services: []ServiceRequest{{ServiceType: 4}}}))

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"code":"0","data":{"id":9}}`, w.Body.String())
	scanner.AssertExpectations(t)

	w = httptest.NewRecorder()
	h.CreateMember(w, jsonRequest(t, http.MethodPost, "/api/external/members", `{"services":[]}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid name: required field", decodeError(t, w).Error)
}

func TestExternalHandler_ListMembers(t *testing.T) {
	tests := []struct {
		name           string
		query          string
		forwarded      url.Values
		expectedStatus int
	}{
		{
			name:           "defaults",
			query:          "",
			forwarded:      url.Values{"page": {"1"}, "pageSize": {"10"}},
			expectedStatus: http.StatusOK,
		},
		{
			name:  "filters",
			query: "page=2&pageSize=20&sortOrder=Desc&memberName=Guest",
			forwarded: url.Values{
				"page":       {"2"},
				"pageSize":   {"20"},
				"sortOrder":  {"Desc"},
				"memberName": {"Guest"},
			},
			expectedStatus: http.StatusOK,
		},
		{name: "bad sort order", query: "sortOrder=sideways", expectedStatus: http.StatusBadRequest},
		{name: "page not a number", query: "page=abc", expectedStatus: http.StatusBadRequest},
		{name: "page below one", query: "page=0", expectedStatus: http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			scanner := &mocks.TestifyMockScanAPI{}
			h := NewExternalHandler(scanner, nil)
			if tc.forwarded != nil {
				scanner.On("ListMembers", mock.Anything, tc.forwarded).Return(`{"data":[]}`, nil)
			}

			w := httptest.NewRecorder()
			h.ListMembers(w, httptest.NewRequest(http.MethodGet, "/api/external/members?"+tc.query, nil))

			assert.Equal(t, tc.expectedStatus, w.Code)
			scanner.AssertExpectations(t)
		})
	}
}

func TestExternalHandler_AssignServices(t *testing.T) {
	scanner := &mocks.TestifyMockScanAPI{}
	h := NewExternalHandler(scanner, nil)
	dealer := 3
	scanner.On("AssignServices", mock.Anything, scanapi.AssignServicesRequest{
		ID:       9,
		DealerID: &dealer,
		Services: []scanapi.ServiceAssignment{{ServiceType: 4}},
	}).Return(`{"code":"0"}`, nil)

	w := httptest.NewRecorder()
	h.AssignServices(w, jsonRequest(t, http.MethodPost, "/api/external/members/services",
		`{"id":9,"dealerId":3,"services":[{"serviceType":4}]}`))

	assert.Equal(t, http.StatusOK, w.Code)
	scanner.AssertExpectations(t)

	w = httptest.NewRecorder()
	h.AssignServices(w, jsonRequest(t, http.MethodPost, "/api/external/members/services",
		`{"id":9,"services":[{"serviceType":0}]}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExternalHandler_ExportServiceUsageLogs(t *testing.T) {
	scanner := &mocks.TestifyMockScanAPI{}
	h := NewExternalHandler(scanner, nil)
	scanner.On("ExportServiceUsageLogs", mock.Anything).Return([]byte("PK-xlsx"), nil).Once()
	scanner.On("ExportServiceUsageLogs", mock.Anything).Return(nil, errors.New("dial tcp: refused")).Once()

	w := httptest.NewRecorder()
	h.ExportServiceUsageLogs(w, httptest.NewRequest(http.MethodGet, "/api/dealers/export-service-usage-logs", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=service-usage-logs.xlsx", w.Header().Get("Content-Disposition"))
	assert.Equal(t, "PK-xlsx", w.Body.String())

	w = httptest.NewRecorder()
	h.ExportServiceUsageLogs(w, httptest.NewRequest(http.MethodGet, "/api/dealers/export-service-usage-logs", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to export service usage logs", decodeError(t, w).Error)
}
