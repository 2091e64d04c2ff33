// Package session runs one record or playback run over a cache file.
//
// All session state, including the store handle, sits behind a single mutex.
// Each operation holds it for its whole register, look up and write sequence,
// so concurrent callers queue instead of interleaving occurrence numbers.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/rsclarke/replaycache/internal/events"
	"github.com/rsclarke/replaycache/internal/fingerprint"
	"github.com/rsclarke/replaycache/internal/logging"
	"github.com/rsclarke/replaycache/internal/normalize"
	"github.com/rsclarke/replaycache/internal/store"
)

// Config describes a session.
type Config struct {
	Path   string
	Mode   store.Mode
	Rules  normalize.Rules
	Logger *zap.Logger
	// Events receives diagnostics. Nil discards them.
	Events events.Sink
}

// Session is one active run. Create it with New and end it with Close.
type Session struct {
	mu      sync.Mutex
	mode    store.Mode
	rules   normalize.Rules
	store   *store.Store
	counter *fingerprint.Counter
	pending map[string]*transaction
	seq     uint64
	ended   bool

	logger *zap.Logger
	events events.Sink
	now    func() time.Time
}

// New opens the session's store. Disabled sessions open nothing.
func New(ctx context.Context, cfg Config) (*Session, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sink := cfg.Events
	if sink == nil {
		sink = events.Discard{}
	}

	s := &Session{
		mode:    cfg.Mode,
		rules:   cfg.Rules.Clone(),
		counter: fingerprint.NewCounter(),
		pending: make(map[string]*transaction),
		logger:  logger.With(logging.Component("session"), logging.Mode(cfg.Mode.String())),
		events:  sink,
		now:     time.Now,
	}

	if cfg.Mode != store.ModeDisabled {
		st, err := store.Open(cfg.Path, cfg.Mode, logger)
		if err != nil {
			return nil, fmt.Errorf("open session store: %w", err)
		}
		s.store = st
	}

	s.logger.Info("session started", logging.Path(cfg.Path))
	return s, nil
}

// Mode returns the session mode.
func (s *Session) Mode() store.Mode { return s.mode }

// Rules returns a snapshot of the current normalization rules.
func (s *Session) Rules() normalize.Rules {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rules.Clone()
}

// SetRules replaces the normalization rules for subsequent requests.
func (s *Session) SetRules(r normalize.Rules) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = r.Clone()
}

// UpdateRules applies fn to a copy of the rules and installs the result.
func (s *Session) UpdateRules(fn func(*normalize.Rules)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.rules.Clone()
	fn(&next)
	s.rules = next
}

// State is a point-in-time view of a session's bookkeeping.
type State struct {
	Mode         store.Mode
	Pending      int
	Fingerprints int
	Ended        bool
}

// State returns a snapshot of the session's bookkeeping.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Mode:         s.mode,
		Pending:      len(s.pending),
		Fingerprints: s.counter.Len(),
		Ended:        s.ended,
	}
}

// Close ends the session. Transactions still in flight are flushed with the
// data they accumulated, then the store is closed, which in record modes
// moves the cache file into place. Close is idempotent.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return nil
	}
	s.ended = true

	err := s.flushPending(ctx)
	s.counter.Reset()
	if s.store != nil {
		if cerr := s.store.Close(); cerr != nil {
			err = multierr.Append(err, cerr)
		}
	}
	if err != nil {
		s.logger.Error("session ended with errors", zap.Error(err))
		return err
	}
	s.logger.Info("session ended")
	return nil
}

func (s *Session) emit(kind events.Kind, n normalize.NormalizedRequest, hash string, occurrence int) {
	s.events.Emit(events.Event{
		Kind:       kind,
		URL:        n.URL,
		Query:      n.QueryString(),
		Method:     n.Method,
		Body:       n.Body,
		Hash:       hash,
		Occurrence: occurrence,
		At:         s.now(),
	})
}
