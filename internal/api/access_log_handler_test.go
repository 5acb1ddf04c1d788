package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vietguard/vietguard-api/internal/domain"
)

func TestAccessLogHandler_Record(t *testing.T) {
	id := uuid.New()
	logs := &fakeAccessLogs{
		RecordFn: func(ctx context.Context, addr domain.ClientAddress) (*domain.AccessLog, error) {
			if _, _, err := addr.Primary(); err != nil {
				return nil, err
			}
			return &domain.AccessLog{ID: id, IPv4: addr.IPv4, AccessCount: 3}, nil
		},
	}
	h := NewAccessLogHandler(logs, nil)

	w := httptest.NewRecorder()
	h.Record(w, jsonRequest(t, http.MethodPost, "/access-logs/record", RecordAccessRequest{IPv4: "192.168.1.1"}))

	require.Equal(t, http.StatusCreated, w.Code)
	var resp RecordAccessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Access recorded successfully", resp.Message)
	assert.Equal(t, id, resp.Data.ID)
	assert.Equal(t, 3, resp.Data.AccessCount)

	w = httptest.NewRecorder()
	h.Record(w, jsonRequest(t, http.MethodPost, "/access-logs/record", `{}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "At least one of ipv4 or ipv6 is required", decodeError(t, w).Error)
}

func TestAccessLogHandler_List(t *testing.T) {
	var got domain.AccessLogQuery
	logs := &fakeAccessLogs{
		ListFn: func(ctx context.Context, q domain.AccessLogQuery) (domain.AccessLogPage, error) {
			got = q
			q = q.Normalize()
			return domain.NewAccessLogPage(nil, 0, q), nil
		},
	}
	h := NewAccessLogHandler(logs, nil)

	w := httptest.NewRecorder()
	h.List(w, httptest.NewRequest(http.MethodGet,
		"/access-logs?page=2&limit=5&sortBy=access_count&sortOrder=ASC&search=10.0", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.AccessLogQuery{Page: 2, Limit: 5, SortBy: "access_count", SortOrder: "ASC", Search: "10.0"}, got)
	assert.JSONEq(t, `{"data":[],"total":0,"page":2,"limit":5,"totalPages":0}`, w.Body.String())

	w = httptest.NewRecorder()
	h.List(w, httptest.NewRequest(http.MethodGet, "/access-logs?page=abc", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, got.Page, "malformed paging is left for the service to default")
}

func TestAccessLogHandler_Count(t *testing.T) {
	h := NewAccessLogHandler(&fakeAccessLogs{
		CountFn: func(ctx context.Context) (int, error) { return 42, nil },
	}, nil)

	w := httptest.NewRecorder()
	h.Count(w, httptest.NewRequest(http.MethodGet, "/access-logs/count", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"total":42}`, w.Body.String())
}
