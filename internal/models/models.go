// Package models defines the database entity types.
package models

import "fmt"

// StoredRequest is a recorded request row. It carries the normalized request
// fields together with its fingerprint.
type StoredRequest struct {
	ID         int64
	URL        string
	URLNoQuery string
	Query      *string
	Method     string
	Body       []byte
	Headers    []byte
	Hash       string
	Occurrence int

	QueryHasAuth   bool
	BodyHasAuth    bool
	HeadersHasAuth bool
}

// StoredResponse is the recorded outcome of exactly one StoredRequest.
type StoredResponse struct {
	ID         int64
	RequestID  int64
	Data       []byte
	Headers    []byte
	StatusCode int
	Failure    *Failure
}

// Failure describes a request that ended in a transport error instead of a
// response. It is replayed verbatim.
type Failure struct {
	Domain  string
	Code    int
	Message string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s (%s %d)", f.Message, f.Domain, f.Code)
}
