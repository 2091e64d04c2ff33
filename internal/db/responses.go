package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rsclarke/replaycache/internal/models"
)

const responseColumns = "id, request_id, data, headers, status_code, failure_domain, failure_code, failure_description"

// InsertResponse inserts the response row for a request and returns its ID.
func InsertResponse(ctx context.Context, d DBTX, r *models.StoredResponse) (int64, error) {
	domain, code, desc := failureColumns(r.Failure)
	result, err := d.ExecContext(ctx,
		`INSERT INTO responses (request_id, data, headers, status_code, failure_domain, failure_code, failure_description)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.RequestID, nullBytes(r.Data), nullBytes(r.Headers), r.StatusCode, domain, code, desc,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// ReplaceResponse overwrites the response of a request in place, inserting
// it if the request has none yet.
func ReplaceResponse(ctx context.Context, d DBTX, r *models.StoredResponse) (int64, error) {
	domain, code, desc := failureColumns(r.Failure)
	var id int64
	err := d.QueryRowContext(ctx,
		`INSERT INTO responses (request_id, data, headers, status_code, failure_domain, failure_code, failure_description)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (request_id) DO UPDATE SET
			data = excluded.data,
			headers = excluded.headers,
			status_code = excluded.status_code,
			failure_domain = excluded.failure_domain,
			failure_code = excluded.failure_code,
			failure_description = excluded.failure_description
		RETURNING id`,
		r.RequestID, nullBytes(r.Data), nullBytes(r.Headers), r.StatusCode, domain, code, desc,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetResponseByRequest retrieves the response recorded for a request, or nil
// if there is none.
func GetResponseByRequest(ctx context.Context, d DBTX, requestID int64) (*models.StoredResponse, error) {
	row := d.QueryRowContext(ctx, "SELECT "+responseColumns+" FROM responses WHERE request_id = ?", requestID)
	var r models.StoredResponse
	var domain, desc sql.NullString
	var code sql.NullInt64
	err := row.Scan(&r.ID, &r.RequestID, &r.Data, &r.Headers, &r.StatusCode, &domain, &code, &desc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if domain.Valid || code.Valid || desc.Valid {
		r.Failure = &models.Failure{
			Domain:  domain.String,
			Code:    int(code.Int64),
			Message: desc.String,
		}
	}
	return &r, nil
}

func failureColumns(f *models.Failure) (domain, code, desc any) {
	if f == nil {
		return nil, nil, nil
	}
	return f.Domain, f.Code, f.Message
}
