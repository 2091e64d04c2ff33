package session

import (
	"context"
	"fmt"

	"github.com/rsclarke/replaycache/internal/events"
	"github.com/rsclarke/replaycache/internal/fingerprint"
	"github.com/rsclarke/replaycache/internal/logging"
	"github.com/rsclarke/replaycache/internal/models"
	"github.com/rsclarke/replaycache/internal/normalize"
	"github.com/rsclarke/replaycache/internal/store"
)

// Match is the outcome of a successful playback lookup.
type Match struct {
	Request  models.StoredRequest
	Response models.StoredResponse
	// Synthesized is set for the 403 challenge built when only an
	// authenticated variant of an unauthenticated request was recorded.
	Synthesized bool
}

// Err returns the recorded transport failure, if the request failed at
// record time.
func (m *Match) Err() error {
	if m.Response.Failure == nil {
		return nil
	}
	return m.Response.Failure
}

var (
	challengeHeaders = []byte(`{"Content-Type":["application/json"]}`)
	challengeBody    = []byte(`{"error":"not authorized"}`)
)

func bools(v bool) *bool { return &v }

// MatchForPlayback resolves req against the cache. Lookups run in order:
// exact fingerprint and occurrence, header-authenticated sibling of a
// query-authenticated request, unauthenticated sibling, occurrence fallback,
// and finally a synthesized 403 when only an authenticated sibling of an
// unauthenticated request exists. A miss is final.
func (s *Session) MatchForPlayback(ctx context.Context, req normalize.Request) (*Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return nil, ErrSessionEnded
	}
	if s.mode != store.ModePlayback {
		return nil, fmt.Errorf("match for playback: %w", ErrWrongMode)
	}

	n, err := normalize.Normalize(req, s.rules)
	if err != nil {
		return nil, fmt.Errorf("normalize request: %w", err)
	}
	hash := fingerprint.Hash(n)
	occurrence := s.counter.Register(hash)
	log := s.logger.With(logging.Method(n.Method), logging.URL(n.URL), logging.Hash(hash), logging.Occurrence(occurrence))

	found, err := s.store.Find(ctx, n, hash, occurrence, true, normalize.PolicyStrict)
	if err != nil {
		return nil, err
	}

	if found == nil && n.QueryHasAuth {
		found, err = s.store.FindAuthVariant(ctx, n, occurrence, store.Variant{
			QueryHasAuth:   bools(false),
			HeadersHasAuth: bools(true),
		})
		if err != nil {
			return nil, err
		}
		if found != nil {
			log.Debug("matched header-authenticated sibling")
		}
	}

	if found == nil {
		found, err = s.findUnauthenticated(ctx, n, occurrence)
		if err != nil {
			return nil, err
		}
		if found != nil {
			log.Debug("matched unauthenticated sibling")
		}
	}

	if found == nil {
		if policy, ok := s.fallbackPolicy(n); ok {
			found, err = s.store.Find(ctx, n, hash, occurrence, false, policy)
			if err != nil {
				return nil, err
			}
			if found != nil {
				log.Debug("matched by occurrence fallback", logging.Occurrence(found.Occurrence))
			}
		}
	}

	if found == nil && !n.HasAuth() {
		sibling, err := s.store.FindAuthVariant(ctx, n, 0, store.Variant{AnyAuth: true})
		if err != nil {
			return nil, err
		}
		if sibling != nil {
			log.Info("synthesizing auth challenge for unauthenticated request")
			s.emit(events.KindAuthChallenge, n, hash, occurrence)
			return &Match{
				Request: *sibling,
				Response: models.StoredResponse{
					RequestID:  sibling.ID,
					StatusCode: 403,
					Headers:    challengeHeaders,
					Data:       challengeBody,
				},
				Synthesized: true,
			}, nil
		}
	}

	if found == nil {
		log.Warn("cache miss")
		s.emit(events.KindCacheMiss, n, hash, occurrence)
		return nil, fmt.Errorf("%w: %s %s", ErrNoMatchingRequest, n.Method, n.URL)
	}

	resp, err := s.store.FindResponse(ctx, found.ID)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		log.Warn("stored request has no response", logging.RequestID(found.ID))
		return nil, fmt.Errorf("%w: request %d", ErrNoMatchingResponse, found.ID)
	}
	return &Match{Request: *found, Response: *resp}, nil
}

// findUnauthenticated looks for a sibling recorded without the
// authentication the request carries, trying query, body and then header
// authentication.
func (s *Session) findUnauthenticated(ctx context.Context, n normalize.NormalizedRequest, occurrence int) (*models.StoredRequest, error) {
	var variants []store.Variant
	if n.QueryHasAuth {
		variants = append(variants, store.Variant{QueryHasAuth: bools(false)})
	}
	if n.BodyHasAuth {
		variants = append(variants, store.Variant{BodyHasAuth: bools(false)})
	}
	if n.HeadersHasAuth {
		variants = append(variants, store.Variant{HeadersHasAuth: bools(false)})
	}
	for _, v := range variants {
		found, err := s.store.FindAuthVariant(ctx, n, occurrence, v)
		if err != nil || found != nil {
			return found, err
		}
	}
	return nil, nil
}

// fallbackPolicy decides whether a request may match a different
// occurrence. URLs on the ignore list always may, using the session policy
// when it is a fallback and fallbackLast otherwise.
func (s *Session) fallbackPolicy(n normalize.NormalizedRequest) (normalize.Policy, bool) {
	policy := s.rules.OccurrencePolicy
	if s.rules.IgnoresOccurrence(n.URLNoQuery) {
		if policy == normalize.PolicyStrict {
			policy = normalize.PolicyFallbackLast
		}
		return policy, true
	}
	return policy, policy != normalize.PolicyStrict
}
