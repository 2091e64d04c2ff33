// Package store persists recorded request/response pairs.
//
// Record modes never write to the configured cache file directly. They work
// on a scratch copy in the same directory which Close moves into place with a
// rename, so an interrupted recording leaves the previous cache intact.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/rsclarke/replaycache/internal/db"
	"github.com/rsclarke/replaycache/internal/logging"
	"github.com/rsclarke/replaycache/internal/models"
	"github.com/rsclarke/replaycache/internal/normalize"
)

// Store is a cache file opened in one mode. Reads may run concurrently;
// writes are exclusive.
type Store struct {
	mu      sync.RWMutex
	path    string
	scratch string
	mode    Mode
	db      *sql.DB
	missing bool
	closed  bool
	logger  *zap.Logger
}

// Variant constrains the authentication flags of a sibling row. Nil flags
// are unconstrained; AnyAuth requires at least one flag to be set.
type Variant struct {
	QueryHasAuth   *bool
	BodyHasAuth    *bool
	HeadersHasAuth *bool
	AnyAuth        bool
}

// Open opens the cache at path in the given mode. Playback of a missing file
// succeeds, but every lookup then fails with ErrCacheDoesNotExist and no file
// is created.
func Open(path string, mode Mode, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		path:   path,
		mode:   mode,
		logger: logger.With(logging.Component("store"), logging.Path(path), logging.Mode(mode.String())),
	}

	switch mode {
	case ModePlayback:
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			s.missing = true
			s.logger.Warn("cache file does not exist")
			return s, nil
		} else if err != nil {
			return nil, ioErr("stat", err)
		}
		database, err := db.OpenReadOnly(path)
		if err != nil {
			return nil, ioErr("open", err)
		}
		s.db = database
	case ModeCleanRecord, ModeSupplementalRecord:
		scratch, err := createScratch(path, mode == ModeSupplementalRecord)
		if err != nil {
			return nil, ioErr("create scratch copy", err)
		}
		database, err := db.Open(scratch)
		if err != nil {
			_ = os.Remove(scratch)
			return nil, ioErr("open", err)
		}
		s.scratch = scratch
		s.db = database
	default:
		return nil, fmt.Errorf("store: mode %s has no backing store", mode)
	}

	s.logger.Debug("store opened")
	return s, nil
}

// createScratch makes an empty, or for supplemental recording a copied,
// working file next to path.
func createScratch(path string, copyExisting bool) (string, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return "", err
	}
	name := f.Name()

	if copyExisting {
		if err := copyInto(f, path); err != nil {
			_ = f.Close()
			_ = os.Remove(name)
			return "", err
		}
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return "", err
	}
	return name, nil
}

func copyInto(dst *os.File, src string) error {
	in, err := os.Open(src)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()
	if _, err := io.Copy(dst, in); err != nil {
		return err
	}
	return dst.Sync()
}

// Mode returns the mode the store was opened in.
func (s *Store) Mode() Mode { return s.mode }

// Path returns the configured cache location.
func (s *Store) Path() string { return s.path }

func (s *Store) readable() error {
	switch {
	case s.closed:
		return ErrClosed
	case s.missing:
		return ErrCacheDoesNotExist
	}
	return nil
}

// InsertOrUpdate stores resp as the response of n at the given occurrence.
// An existing row with the same key has its response replaced in place;
// otherwise a new request/response pair is inserted. It returns the request
// row ID.
func (s *Store) InsertOrUpdate(ctx context.Context, n normalize.NormalizedRequest, hash string, occurrence int, resp models.StoredResponse) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}
	if !s.mode.Records() {
		return 0, ErrReadOnly
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, ioErr("begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := db.FindRequests(ctx, tx, keyFor(n, hash, &occurrence))
	if err != nil {
		return 0, ioErr("find", err)
	}

	var requestID int64
	if len(existing) > 0 {
		requestID = existing[0].ID
		if err := db.UpdateRequestHeaders(ctx, tx, requestID, n.Headers, n.HeadersHasAuth); err != nil {
			return 0, ioErr("update request", err)
		}
		resp.RequestID = requestID
		if _, err := db.ReplaceResponse(ctx, tx, &resp); err != nil {
			return 0, ioErr("replace response", err)
		}
	} else {
		row := requestRow(n, hash, occurrence)
		requestID, err = db.InsertRequest(ctx, tx, &row)
		if err != nil {
			return 0, ioErr("insert request", err)
		}
		if requestID == 0 {
			return 0, fmt.Errorf("%w: request stored without an id", ErrInternal)
		}
		resp.RequestID = requestID
		if _, err := db.InsertResponse(ctx, tx, &resp); err != nil {
			return 0, ioErr("insert response", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, ioErr("commit", err)
	}

	s.logger.Debug("pair stored",
		logging.RequestID(requestID),
		logging.Hash(hash),
		logging.Occurrence(occurrence),
		logging.Status(resp.StatusCode),
		zap.Bool("updated", len(existing) > 0),
	)
	return requestID, nil
}

// Find looks up the stored request for n. With exact set only the given
// occurrence matches. Otherwise, when that occurrence is not stored, the
// lowest or highest stored occurrence is chosen per policy; PolicyStrict
// never falls back. A nil request means no match.
func (s *Store) Find(ctx context.Context, n normalize.NormalizedRequest, hash string, occurrence int, exact bool, policy normalize.Policy) (*models.StoredRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.readable(); err != nil {
		return nil, err
	}

	found, err := db.FindRequests(ctx, s.db, keyFor(n, hash, &occurrence))
	if err != nil {
		return nil, ioErr("find", err)
	}
	if len(found) > 0 {
		return &found[0], nil
	}
	if exact || policy == normalize.PolicyStrict {
		return nil, nil
	}

	all, err := db.FindRequests(ctx, s.db, keyFor(n, hash, nil))
	if err != nil {
		return nil, ioErr("find", err)
	}
	if len(all) == 0 {
		return nil, nil
	}
	if policy == normalize.PolicyFallbackFirst {
		return &all[0], nil
	}
	return &all[len(all)-1], nil
}

// FindAuthVariant looks for a row sharing n's URL, query, body and method
// whose authentication flags satisfy v. An occurrence of zero matches any
// occurrence. Several candidates resolve to the lowest row ID.
func (s *Store) FindAuthVariant(ctx context.Context, n normalize.NormalizedRequest, occurrence int, v Variant) (*models.StoredRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.readable(); err != nil {
		return nil, err
	}

	filter := db.SiblingFilter{
		URLNoQuery:     n.URLNoQuery,
		Query:          n.Query,
		Body:           n.Body,
		Method:         n.Method,
		QueryHasAuth:   v.QueryHasAuth,
		BodyHasAuth:    v.BodyHasAuth,
		HeadersHasAuth: v.HeadersHasAuth,
		AnyAuth:        v.AnyAuth,
	}
	if occurrence > 0 {
		filter.Occurrence = &occurrence
	}
	found, err := db.FindSiblings(ctx, s.db, filter)
	if err != nil {
		return nil, ioErr("find sibling", err)
	}
	if len(found) == 0 {
		return nil, nil
	}
	return &found[0], nil
}

// FindResponse returns the response stored for a request, or nil.
func (s *Store) FindResponse(ctx context.Context, requestID int64) (*models.StoredResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.readable(); err != nil {
		return nil, err
	}
	resp, err := db.GetResponseByRequest(ctx, s.db, requestID)
	if err != nil {
		return nil, ioErr("find response", err)
	}
	return resp, nil
}

// Request returns a stored request by ID, or nil.
func (s *Store) Request(ctx context.Context, id int64) (*models.StoredRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.readable(); err != nil {
		return nil, err
	}
	r, err := db.GetRequest(ctx, s.db, id)
	if err != nil {
		return nil, ioErr("get request", err)
	}
	return r, nil
}

// Requests returns every stored request in insertion order.
func (s *Store) Requests(ctx context.Context) ([]models.StoredRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.readable(); err != nil {
		return nil, err
	}
	list, err := db.ListRequests(ctx, s.db)
	if err != nil {
		return nil, ioErr("list requests", err)
	}
	return list, nil
}

// Count returns the number of stored requests.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.readable(); err != nil {
		return 0, err
	}
	n, err := db.CountRequests(ctx, s.db)
	if err != nil {
		return 0, ioErr("count requests", err)
	}
	return n, nil
}

// Close releases the database. In record modes it then moves the scratch
// copy over the configured path. Close is idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.db == nil {
		return nil
	}

	if !s.mode.Records() {
		return ioErr("close", s.db.Close())
	}

	if err := db.Checkpoint(s.db); err != nil {
		_ = s.db.Close()
		_ = os.Remove(s.scratch)
		return ioErr("checkpoint", err)
	}
	if err := s.db.Close(); err != nil {
		_ = os.Remove(s.scratch)
		return ioErr("close", err)
	}
	if err := os.Rename(s.scratch, s.path); err != nil {
		_ = os.Remove(s.scratch)
		return ioErr("commit cache file", err)
	}
	s.logger.Info("cache file written")
	return nil
}

func keyFor(n normalize.NormalizedRequest, hash string, occurrence *int) db.RequestKey {
	return db.RequestKey{
		Hash:       hash,
		Occurrence: occurrence,
		URLNoQuery: n.URLNoQuery,
		Query:      n.Query,
		Body:       n.Body,
		Method:     n.Method,
	}
}

func requestRow(n normalize.NormalizedRequest, hash string, occurrence int) models.StoredRequest {
	return models.StoredRequest{
		URL:            n.URL,
		URLNoQuery:     n.URLNoQuery,
		Query:          n.Query,
		Method:         n.Method,
		Body:           n.Body,
		Headers:        n.Headers,
		Hash:           hash,
		Occurrence:     occurrence,
		QueryHasAuth:   n.QueryHasAuth,
		BodyHasAuth:    n.BodyHasAuth,
		HeadersHasAuth: n.HeadersHasAuth,
	}
}
