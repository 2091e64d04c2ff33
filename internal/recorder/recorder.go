// Package recorder feeds observed HTTP traffic into a recording session.
package recorder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rsclarke/replaycache/internal/logging"
	"github.com/rsclarke/replaycache/internal/normalize"
	"github.com/rsclarke/replaycache/internal/session"
)

// Handler receives the lifecycle of each observed request. Calls for one id
// arrive in order: Sent, then HeadersReceived unless the request failed,
// then Finished.
type Handler interface {
	Sent(ctx context.Context, id string, req *http.Request)
	HeadersReceived(ctx context.Context, id string, resp *http.Response)
	Finished(ctx context.Context, id string, body []byte, err error)
}

// Observer reports outgoing requests to a Handler while observing.
type Observer interface {
	StartObserving(h Handler) error
	StopObserving() error
}

var (
	ErrAlreadyObserving = errors.New("already observing")
	ErrNotObserving     = errors.New("not observing")
)

// Transport is an http.RoundTripper Observer. Requests always go to Base;
// while observing, each one is also reported to the handler under a fresh id.
type Transport struct {
	// Base sends the requests. Nil means http.DefaultTransport.
	Base http.RoundTripper

	mu      sync.RWMutex
	handler Handler
}

func (t *Transport) StartObserving(h Handler) error {
	if h == nil {
		return errors.New("nil handler")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.handler != nil {
		return ErrAlreadyObserving
	}
	t.handler = h
	return nil
}

func (t *Transport) StopObserving() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.handler == nil {
		return ErrNotObserving
	}
	t.handler = nil
	return nil
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	t.mu.RLock()
	h := t.handler
	t.mu.RUnlock()
	if h == nil {
		return base.RoundTrip(req)
	}

	ctx := req.Context()
	id := uuid.NewString()
	h.Sent(ctx, id, req)

	resp, err := base.RoundTrip(req)
	if err != nil {
		h.Finished(ctx, id, nil, err)
		return nil, err
	}
	h.HeadersReceived(ctx, id, resp)

	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	h.Finished(ctx, id, body, err)
	if err != nil {
		return nil, err
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp, nil
}

// Recorder bridges observed traffic into a session.
type Recorder struct {
	session  *session.Session
	observer Observer
	logger   *zap.Logger
}

// New returns a Recorder writing what o observes into s.
func New(s *session.Session, o Observer, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		session:  s,
		observer: o,
		logger:   logger.With(logging.Component("recorder")),
	}
}

// Start begins recording.
func (r *Recorder) Start() error { return r.observer.StartObserving(r) }

// Stop ends recording. Transactions still open are flushed when the session
// closes.
func (r *Recorder) Stop() error { return r.observer.StopObserving() }

func (r *Recorder) Sent(ctx context.Context, id string, req *http.Request) {
	nr, err := normalize.FromHTTP(req)
	if err != nil {
		r.logger.Error("failed to read request", logging.TxnID(id), zap.Error(err))
		return
	}
	if err := r.session.RegisterOutgoing(context.WithoutCancel(ctx), id, nr); err != nil {
		r.logger.Error("failed to register request", logging.TxnID(id), zap.Error(err))
	}
}

func (r *Recorder) HeadersReceived(ctx context.Context, id string, resp *http.Response) {
	if err := r.session.AttachResponse(context.WithoutCancel(ctx), id, resp.StatusCode, resp.Header); err != nil {
		r.logger.Error("failed to attach response", logging.TxnID(id), zap.Error(err))
	}
}

// Finished persists the transaction. A transport error seen after the
// request's context was cancelled counts as cancellation and is not stored.
func (r *Recorder) Finished(ctx context.Context, id string, body []byte, err error) {
	if err != nil && errors.Is(ctx.Err(), context.Canceled) && !errors.Is(err, context.Canceled) {
		err = fmt.Errorf("%w: %w", context.Canceled, err)
	}
	if rerr := r.session.RecordCompleted(context.WithoutCancel(ctx), id, body, err); rerr != nil {
		r.logger.Error("failed to record transaction", logging.TxnID(id), zap.Error(rerr))
	}
}
