package normalize

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
)

// Request is the transport-neutral view of an outgoing HTTP request.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// FromHTTP captures req as a Request. The body is read and replaced so the
// caller can still send req afterwards.
func FromHTTP(req *http.Request) (Request, error) {
	out := Request{
		Method: req.Method,
		URL:    req.URL.String(),
		Header: req.Header.Clone(),
	}
	if req.Body == nil || req.Body == http.NoBody {
		return out, nil
	}

	if req.GetBody != nil {
		rc, err := req.GetBody()
		if err != nil {
			return Request{}, fmt.Errorf("get body: %w", err)
		}
		defer rc.Close()
		body, err := io.ReadAll(rc)
		if err != nil {
			return Request{}, fmt.Errorf("read body: %w", err)
		}
		out.Body = body
		return out, nil
	}

	body, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return Request{}, fmt.Errorf("read body: %w", err)
	}
	req.Body = io.NopCloser(bytes.NewReader(body))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	out.Body = body
	return out, nil
}

// NormalizedRequest is the canonical form of a Request. It is never mutated
// after Normalize returns it.
type NormalizedRequest struct {
	URL        string
	URLNoQuery string
	Query      *string
	Method     string
	Body       []byte
	Headers    []byte

	QueryHasAuth   bool
	BodyHasAuth    bool
	HeadersHasAuth bool
}

// QueryString returns the canonical query, or "" when absent.
func (n NormalizedRequest) QueryString() string {
	if n.Query == nil {
		return ""
	}
	return *n.Query
}

// HasAuth reports whether any authentication material was detected.
func (n NormalizedRequest) HasAuth() bool {
	return n.QueryHasAuth || n.BodyHasAuth || n.HeadersHasAuth
}
