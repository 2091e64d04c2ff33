// Package player answers intercepted HTTP requests from a playback session.
package player

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/rsclarke/replaycache/internal/logging"
	"github.com/rsclarke/replaycache/internal/normalize"
	"github.com/rsclarke/replaycache/internal/session"
)

// Handler answers an intercepted request.
type Handler interface {
	Intercept(req *http.Request) (*http.Response, error)
}

// Interceptor routes outgoing requests to a Handler while intercepting.
type Interceptor interface {
	StartIntercepting(h Handler) error
	StopIntercepting() error
}

var (
	ErrAlreadyIntercepting = errors.New("already intercepting")
	ErrNotIntercepting     = errors.New("not intercepting")
)

// Transport is an http.RoundTripper Interceptor. While intercepting every
// request goes to the handler; otherwise requests use Base.
type Transport struct {
	// Base handles requests while not intercepting. Nil means
	// http.DefaultTransport.
	Base http.RoundTripper

	mu      sync.RWMutex
	handler Handler
}

func (t *Transport) StartIntercepting(h Handler) error {
	if h == nil {
		return errors.New("nil handler")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.handler != nil {
		return ErrAlreadyIntercepting
	}
	t.handler = h
	return nil
}

func (t *Transport) StopIntercepting() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.handler == nil {
		return ErrNotIntercepting
	}
	t.handler = nil
	return nil
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.mu.RLock()
	h := t.handler
	t.mu.RUnlock()

	if h != nil {
		return h.Intercept(req)
	}
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

// Player turns session matches into HTTP responses.
type Player struct {
	session     *session.Session
	interceptor Interceptor
	logger      *zap.Logger
}

// New returns a Player replaying s through i.
func New(s *session.Session, i Interceptor, logger *zap.Logger) *Player {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Player{
		session:     s,
		interceptor: i,
		logger:      logger.With(logging.Component("player")),
	}
}

// Start begins answering intercepted requests.
func (p *Player) Start() error { return p.interceptor.StartIntercepting(p) }

// Stop hands requests back to the network.
func (p *Player) Stop() error { return p.interceptor.StopIntercepting() }

// Intercept answers req from the session. Recorded transport failures are
// returned as errors of type *models.Failure.
func (p *Player) Intercept(req *http.Request) (*http.Response, error) {
	r, err := normalize.FromHTTP(req)
	if err != nil {
		return nil, fmt.Errorf("read request: %w", err)
	}

	m, err := p.session.MatchForPlayback(req.Context(), r)
	if err != nil {
		p.logger.Debug("playback failed", logging.Method(req.Method), logging.URL(req.URL.String()), zap.Error(err))
		return nil, err
	}
	if ferr := m.Err(); ferr != nil {
		return nil, ferr
	}

	header, err := normalize.DecodeHeader(m.Response.Headers)
	if err != nil {
		return nil, fmt.Errorf("request %d: %w", m.Request.ID, err)
	}
	body := m.Response.Data
	header.Del("Content-Length")

	return &http.Response{
		Status:        strconv.Itoa(m.Response.StatusCode) + " " + http.StatusText(m.Response.StatusCode),
		StatusCode:    m.Response.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}, nil
}
