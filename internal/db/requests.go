package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/rsclarke/replaycache/internal/models"
)

const requestColumns = "id, url, url_no_query, query, method, body, headers, hash, occurrence, query_has_auth, body_has_auth, headers_has_auth"

// RequestKey selects requests by their content fingerprint. A nil
// Occurrence matches every occurrence.
type RequestKey struct {
	Hash       string
	Occurrence *int
	URLNoQuery string
	Query      *string
	Body       []byte
	Method     string
}

// SiblingFilter selects requests sharing URL, query, body and method while
// constraining their authentication flags. A nil flag is unconstrained.
type SiblingFilter struct {
	URLNoQuery string
	Query      *string
	Body       []byte
	Method     string
	Occurrence *int

	QueryHasAuth   *bool
	BodyHasAuth    *bool
	HeadersHasAuth *bool
	// AnyAuth requires at least one of the three flags to be set.
	AnyAuth bool
}

// InsertRequest inserts a request row and returns its ID.
func InsertRequest(ctx context.Context, d DBTX, r *models.StoredRequest) (int64, error) {
	result, err := d.ExecContext(ctx,
		`INSERT INTO requests (url, url_no_query, query, method, body, headers, hash, occurrence, query_has_auth, body_has_auth, headers_has_auth)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.URL, r.URLNoQuery, r.Query, nullString(r.Method), nullBytes(r.Body), nullBytes(r.Headers),
		r.Hash, r.Occurrence, boolInt(r.QueryHasAuth), boolInt(r.BodyHasAuth), boolInt(r.HeadersHasAuth),
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// UpdateRequestHeaders refreshes the stored headers of an existing request.
func UpdateRequestHeaders(ctx context.Context, d DBTX, id int64, headers []byte, headersHasAuth bool) error {
	_, err := d.ExecContext(ctx,
		"UPDATE requests SET headers = ?, headers_has_auth = ? WHERE id = ?",
		nullBytes(headers), boolInt(headersHasAuth), id,
	)
	return err
}

// FindRequests returns requests matching key ordered by occurrence.
func FindRequests(ctx context.Context, d DBTX, key RequestKey) ([]models.StoredRequest, error) {
	where := []string{"hash = ?", "url_no_query = ?", "query IS ?", "body IS ?", "method IS ?"}
	args := []any{key.Hash, key.URLNoQuery, key.Query, nullBytes(key.Body), nullString(key.Method)}
	if key.Occurrence != nil {
		where = append(where, "occurrence = ?")
		args = append(args, *key.Occurrence)
	}
	return queryRequests(ctx, d,
		"SELECT "+requestColumns+" FROM requests WHERE "+strings.Join(where, " AND ")+" ORDER BY occurrence, id",
		args...)
}

// FindSiblings returns requests that differ from the filter's request only
// in authentication placement, lowest ID first.
func FindSiblings(ctx context.Context, d DBTX, f SiblingFilter) ([]models.StoredRequest, error) {
	where := []string{"url_no_query = ?", "query IS ?", "body IS ?", "method IS ?"}
	args := []any{f.URLNoQuery, f.Query, nullBytes(f.Body), nullString(f.Method)}
	if f.Occurrence != nil {
		where = append(where, "occurrence = ?")
		args = append(args, *f.Occurrence)
	}
	for _, flag := range []struct {
		column string
		value  *bool
	}{
		{"query_has_auth", f.QueryHasAuth},
		{"body_has_auth", f.BodyHasAuth},
		{"headers_has_auth", f.HeadersHasAuth},
	} {
		if flag.value != nil {
			where = append(where, flag.column+" = ?")
			args = append(args, boolInt(*flag.value))
		}
	}
	if f.AnyAuth {
		where = append(where, "(query_has_auth = 1 OR body_has_auth = 1 OR headers_has_auth = 1)")
	}
	return queryRequests(ctx, d,
		"SELECT "+requestColumns+" FROM requests WHERE "+strings.Join(where, " AND ")+" ORDER BY id",
		args...)
}

// GetRequest retrieves a request by ID, or nil if it does not exist.
func GetRequest(ctx context.Context, d DBTX, id int64) (*models.StoredRequest, error) {
	row := d.QueryRowContext(ctx, "SELECT "+requestColumns+" FROM requests WHERE id = ?", id)
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRequests returns every stored request in insertion order.
func ListRequests(ctx context.Context, d DBTX) ([]models.StoredRequest, error) {
	return queryRequests(ctx, d, "SELECT "+requestColumns+" FROM requests ORDER BY id")
}

// CountRequests returns the number of stored requests.
func CountRequests(ctx context.Context, d DBTX) (int, error) {
	var count int
	err := d.QueryRowContext(ctx, "SELECT COUNT(*) FROM requests").Scan(&count)
	return count, err
}

func queryRequests(ctx context.Context, d DBTX, query string, args ...any) ([]models.StoredRequest, error) {
	rows, err := d.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var requests []models.StoredRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(s scanner) (models.StoredRequest, error) {
	var r models.StoredRequest
	var method sql.NullString
	var queryAuth, bodyAuth, headersAuth int
	err := s.Scan(&r.ID, &r.URL, &r.URLNoQuery, &r.Query, &method, &r.Body, &r.Headers,
		&r.Hash, &r.Occurrence, &queryAuth, &bodyAuth, &headersAuth)
	if err != nil {
		return models.StoredRequest{}, err
	}
	r.Method = method.String
	r.QueryHasAuth = queryAuth != 0
	r.BodyHasAuth = bodyAuth != 0
	r.HeadersHasAuth = headersAuth != 0
	return r, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
