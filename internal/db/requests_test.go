package db

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rsclarke/replaycache/internal/models"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = database.Close()
	})
	return database
}

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }

func boolPtr(b bool) *bool { return &b }

func insertPair(t *testing.T, d *sql.DB, r models.StoredRequest, status int) int64 {
	t.Helper()
	ctx := context.Background()
	id, err := InsertRequest(ctx, d, &r)
	require.NoError(t, err)
	_, err = InsertResponse(ctx, d, &models.StoredResponse{RequestID: id, StatusCode: status})
	require.NoError(t, err)
	return id
}

func TestInsertAndGetRequest(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	in := models.StoredRequest{
		URL:            "https://h/p?a=1",
		URLNoQuery:     "https://h/p",
		Query:          strPtr("a=1"),
		Method:         "POST",
		Body:           []byte(`{"x":1}`),
		Headers:        []byte(`{"Accept":"*/*"}`),
		Hash:           "hash-1",
		Occurrence:     2,
		QueryHasAuth:   true,
		HeadersHasAuth: true,
	}
	id := insertPair(t, d, in, 200)

	got, err := GetRequest(ctx, d, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	in.ID = id
	assert.Equal(t, in, *got)

	missing, err := GetRequest(ctx, d, 9999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestFindRequestsHandlesNullColumns(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	insertPair(t, d, models.StoredRequest{URL: "https://h/p", URLNoQuery: "https://h/p", Method: "GET", Hash: "h", Occurrence: 1}, 200)
	insertPair(t, d, models.StoredRequest{URL: "https://h/p?a=1", URLNoQuery: "https://h/p", Query: strPtr("a=1"), Method: "GET", Hash: "h", Occurrence: 1}, 200)

	found, err := FindRequests(ctx, d, RequestKey{Hash: "h", Occurrence: intPtr(1), URLNoQuery: "https://h/p", Method: "GET"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Nil(t, found[0].Query, "expected the query-less row")
}

func TestFindRequestsAllOccurrences(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	for _, occ := range []int{3, 1, 2} {
		insertPair(t, d, models.StoredRequest{URL: "u", URLNoQuery: "u", Method: "GET", Hash: "h", Occurrence: occ}, 200+occ)
	}

	found, err := FindRequests(ctx, d, RequestKey{Hash: "h", URLNoQuery: "u", Method: "GET"})
	require.NoError(t, err)
	require.Len(t, found, 3)
	for i, r := range found {
		assert.Equal(t, i+1, r.Occurrence, "row %d", i)
	}
}

func TestFindSiblings(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	base := models.StoredRequest{URL: "u?id=1", URLNoQuery: "u", Query: strPtr("id=1"), Method: "GET", Occurrence: 1}

	plain := base
	plain.Hash = "plain"
	plainID := insertPair(t, d, plain, 200)

	authed := base
	authed.Hash = "authed"
	authed.QueryHasAuth = true
	authedID := insertPair(t, d, authed, 200)

	header := base
	header.Hash = "plain"
	header.Occurrence = 2
	header.HeadersHasAuth = true
	headerID := insertPair(t, d, header, 200)

	tests := []struct {
		name   string
		filter SiblingFilter
		want   []int64
	}{
		{"unauthenticated", SiblingFilter{QueryHasAuth: boolPtr(false), BodyHasAuth: boolPtr(false), HeadersHasAuth: boolPtr(false)}, []int64{plainID}},
		{"query authenticated", SiblingFilter{QueryHasAuth: boolPtr(true)}, []int64{authedID}},
		{"header authenticated", SiblingFilter{QueryHasAuth: boolPtr(false), HeadersHasAuth: boolPtr(true)}, []int64{headerID}},
		{"any auth", SiblingFilter{AnyAuth: true}, []int64{authedID, headerID}},
		{"any auth at occurrence", SiblingFilter{AnyAuth: true, Occurrence: intPtr(1)}, []int64{authedID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := tt.filter
			f.URLNoQuery, f.Query, f.Method = base.URLNoQuery, base.Query, base.Method
			got, err := FindSiblings(ctx, d, f)
			require.NoError(t, err)

			ids := make([]int64, 0, len(got))
			for _, r := range got {
				ids = append(ids, r.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestReplaceResponseUpserts(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	reqID, err := InsertRequest(ctx, d, &models.StoredRequest{URL: "u", URLNoQuery: "u", Method: "GET", Hash: "h", Occurrence: 1})
	require.NoError(t, err)

	firstID, err := ReplaceResponse(ctx, d, &models.StoredResponse{RequestID: reqID, StatusCode: 200, Data: []byte("one")})
	require.NoError(t, err)
	secondID, err := ReplaceResponse(ctx, d, &models.StoredResponse{
		RequestID: reqID,
		Failure:   &models.Failure{Domain: "net", Code: 61, Message: "connection refused"},
	})
	require.NoError(t, err)
	assert.Equal(t, firstID, secondID, "response row must be updated in place")

	resp, err := GetResponseByRequest(ctx, d, reqID)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Nil(t, resp.Data)
	assert.Zero(t, resp.StatusCode)
	assert.Equal(t, &models.Failure{Domain: "net", Code: 61, Message: "connection refused"}, resp.Failure)
}

func TestInsertResponseEnforcesOneToOne(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	id := insertPair(t, d, models.StoredRequest{URL: "u", URLNoQuery: "u", Method: "GET", Hash: "h", Occurrence: 1}, 200)
	_, err := InsertResponse(ctx, d, &models.StoredResponse{RequestID: id, StatusCode: 500})
	assert.Error(t, err, "second response for the same request must fail")
}

func TestListAndCountRequests(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		insertPair(t, d, models.StoredRequest{URL: "u", URLNoQuery: "u", Method: "GET", Hash: "h", Occurrence: i}, 200)
	}

	count, err := CountRequests(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	list, err := ListRequests(ctx, d)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, 1, list[0].Occurrence)
	assert.Equal(t, 3, list[2].Occurrence)
}

func TestGetResponseByRequestMissing(t *testing.T) {
	d := setupTestDB(t)

	resp, err := GetResponseByRequest(context.Background(), d, 42)
	require.NoError(t, err)
	assert.Nil(t, resp)
}
