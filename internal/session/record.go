package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"syscall"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/rsclarke/replaycache/internal/events"
	"github.com/rsclarke/replaycache/internal/fingerprint"
	"github.com/rsclarke/replaycache/internal/logging"
	"github.com/rsclarke/replaycache/internal/models"
	"github.com/rsclarke/replaycache/internal/normalize"
)

// Failure domains assigned to errors recorded in place of a response.
const (
	DomainSession   = "replaycache"
	DomainErrno     = "errno"
	DomainTimeout   = "timeout"
	DomainTransport = "transport"
)

// transaction accumulates one observed request until it finishes.
type transaction struct {
	seq        uint64
	normalized normalize.NormalizedRequest
	hash       string
	occurrence int

	hasResponse bool
	status      int
	header      http.Header
}

// RegisterOutgoing opens a transaction for a request that is about to be
// sent and assigns its occurrence.
func (s *Session) RegisterOutgoing(ctx context.Context, id string, req normalize.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.recording(); err != nil {
		return err
	}
	if _, ok := s.pending[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTransaction, id)
	}

	n, err := normalize.Normalize(req, s.rules)
	if err != nil {
		return fmt.Errorf("normalize request: %w", err)
	}
	hash := fingerprint.Hash(n)
	s.seq++
	txn := &transaction{
		seq:        s.seq,
		normalized: n,
		hash:       hash,
		occurrence: s.counter.Register(hash),
	}
	s.pending[id] = txn

	s.logger.Debug("transaction opened",
		logging.TxnID(id),
		logging.Method(n.Method),
		logging.URL(n.URL),
		logging.Hash(hash),
		logging.Occurrence(txn.occurrence),
	)
	return nil
}

// AttachResponse records the status and headers received for a transaction.
func (s *Session) AttachResponse(ctx context.Context, id string, status int, header http.Header) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.recording(); err != nil {
		return err
	}
	txn, ok := s.pending[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTransaction, id)
	}
	txn.hasResponse = true
	txn.status = status
	txn.header = header.Clone()
	return nil
}

// RecordCompleted finishes a transaction and persists it. A nil err stores
// body as the response; any other error is stored as a failure, except
// cancellation, which is dropped so playback does not diverge from a real
// run.
func (s *Session) RecordCompleted(ctx context.Context, id string, body []byte, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rerr := s.recording(); rerr != nil {
		return rerr
	}
	txn, ok := s.pending[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTransaction, id)
	}
	delete(s.pending, id)

	if errors.Is(err, context.Canceled) {
		s.logger.Debug("cancelled transaction not recorded", logging.TxnID(id), logging.URL(txn.normalized.URL))
		return nil
	}

	var failure *models.Failure
	if err != nil {
		failure = failureFrom(err)
	}
	if perr := s.persist(ctx, txn, body, failure); perr != nil {
		s.logger.Error("failed to record transaction", logging.TxnID(id), zap.Error(perr))
		return perr
	}
	s.emit(events.KindRecorded, txn.normalized, txn.hash, txn.occurrence)
	return nil
}

func (s *Session) recording() error {
	if s.ended {
		return ErrSessionEnded
	}
	if !s.mode.Records() {
		return fmt.Errorf("record: %w", ErrWrongMode)
	}
	return nil
}

func (s *Session) persist(ctx context.Context, txn *transaction, body []byte, failure *models.Failure) error {
	headers, err := normalize.EncodeHeader(txn.header)
	if err != nil {
		return err
	}
	resp := models.StoredResponse{
		StatusCode: txn.status,
		Headers:    headers,
		Failure:    failure,
	}
	if len(body) > 0 {
		resp.Data = normalize.NormalizeResponseBody(body, s.rules)
	}
	_, err = s.store.InsertOrUpdate(ctx, txn.normalized, txn.hash, txn.occurrence, resp)
	return err
}

// flushPending persists every open transaction in the order it was opened.
// Transactions that never received headers are stored as failures.
func (s *Session) flushPending(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}
	ids := make([]string, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return s.pending[ids[i]].seq < s.pending[ids[j]].seq })

	var err error
	for _, id := range ids {
		txn := s.pending[id]
		delete(s.pending, id)

		var failure *models.Failure
		if !txn.hasResponse {
			failure = &models.Failure{
				Domain:  DomainSession,
				Code:    -1,
				Message: "transaction did not finish before the session ended",
			}
		}
		if perr := s.persist(ctx, txn, nil, failure); perr != nil {
			err = multierr.Append(err, fmt.Errorf("flush %s: %w", id, perr))
			continue
		}
		s.logger.Warn("flushed unfinished transaction",
			logging.TxnID(id),
			logging.URL(txn.normalized.URL),
			zap.Bool("has_response", txn.hasResponse),
		)
		s.emit(events.KindFlushed, txn.normalized, txn.hash, txn.occurrence)
	}
	return err
}

// failureFrom maps a transport error to the descriptor replayed during
// playback.
func failureFrom(err error) *models.Failure {
	var f *models.Failure
	if errors.As(err, &f) {
		clone := *f
		return &clone
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return &models.Failure{Domain: DomainErrno, Code: int(errno), Message: err.Error()}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &models.Failure{Domain: DomainTimeout, Code: -1, Message: err.Error()}
	}
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Timeout() {
		return &models.Failure{Domain: DomainTimeout, Code: -1, Message: err.Error()}
	}
	return &models.Failure{Domain: DomainTransport, Code: -1, Message: err.Error()}
}
