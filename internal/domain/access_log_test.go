package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientAddress_Primary(t *testing.T) {
	ip, v6, err := ClientAddress{IPv4: "1.2.3.4", IPv6: "::1"}.Primary()
	require.NoError(t, err)
	assert.Equal(t, "::1", ip)
	assert.True(t, v6)

	ip, v6, err = ClientAddress{IPv4: "1.2.3.4"}.Primary()
	require.NoError(t, err)
	assert.Equal(t, "1.2.3.4", ip)
	assert.False(t, v6)

	_, _, err = ClientAddress{IPv6: "  "}.Primary()
	assert.ErrorIs(t, err, ErrMissingIP)
}

func TestAccessLogQuery_Normalize(t *testing.T) {
	q := AccessLogQuery{Page: 0, Limit: 1000, SortBy: "password; DROP", SortOrder: "asc", Search: " 10.0 "}.Normalize()
	assert.Equal(t, 1, q.Page)
	assert.Equal(t, MaxPageSize, q.Limit)
	assert.Equal(t, "last_access_time", q.SortBy)
	assert.Equal(t, "ASC", q.SortOrder)
	assert.Equal(t, "10.0", q.Search)
	assert.Equal(t, 0, q.Offset())

	q = AccessLogQuery{Page: 3, Limit: 20, SortBy: "email", SortOrder: "whatever"}.Normalize()
	assert.Equal(t, "email", q.SortBy)
	assert.Equal(t, "DESC", q.SortOrder)
	assert.Equal(t, 40, q.Offset())
}

func TestNewAccessLogPage(t *testing.T) {
	q := AccessLogQuery{Page: 2, Limit: 10}
	page := NewAccessLogPage(nil, 21, q)
	assert.Equal(t, 3, page.TotalPages)
	assert.NotNil(t, page.Data)
	assert.Equal(t, 2, page.Page)
}
