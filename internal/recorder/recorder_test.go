package recorder

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rsclarke/replaycache/internal/session"
	"github.com/rsclarke/replaycache/internal/store"
)

type fakeHandler struct {
	calls []string
	err   error
}

func (f *fakeHandler) Sent(_ context.Context, id string, _ *http.Request) {
	f.calls = append(f.calls, "sent")
}

func (f *fakeHandler) HeadersReceived(_ context.Context, _ string, resp *http.Response) {
	f.calls = append(f.calls, "headers")
}

func (f *fakeHandler) Finished(_ context.Context, _ string, body []byte, err error) {
	f.calls = append(f.calls, "finished:"+string(body))
	f.err = err
}

type failingTransport struct{ err error }

func (t failingTransport) RoundTrip(*http.Request) (*http.Response, error) { return nil, t.err }

func TestTransportLifecycle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "hello")
	}))
	defer server.Close()

	h := &fakeHandler{}
	tr := &Transport{}
	require.NoError(t, tr.StartObserving(h))
	assert.ErrorIs(t, tr.StartObserving(h), ErrAlreadyObserving)

	client := &http.Client{Transport: tr}
	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, "hello", string(body), "caller must still see the body")
	assert.Equal(t, []string{"sent", "headers", "finished:hello"}, h.calls)

	require.NoError(t, tr.StopObserving())
	assert.ErrorIs(t, tr.StopObserving(), ErrNotObserving)

	_, err = client.Get(server.URL)
	require.NoError(t, err)
	assert.Len(t, h.calls, 3, "no events after StopObserving")
}

func TestTransportReportsFailure(t *testing.T) {
	boom := errors.New("boom")
	h := &fakeHandler{}
	tr := &Transport{Base: failingTransport{err: boom}}
	require.NoError(t, tr.StartObserving(h))

	req, err := http.NewRequest(http.MethodGet, "http://example.invalid/", nil)
	require.NoError(t, err)
	_, err = tr.RoundTrip(req)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"sent", "finished:"}, h.calls)
	assert.ErrorIs(t, h.err, boom)
}

func TestRecorderWritesSession(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"echo":` + string(body) + `}`))
	}))
	defer server.Close()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")
	s, err := session.New(ctx, session.Config{Path: path, Mode: store.ModeCleanRecord})
	require.NoError(t, err)

	tr := &Transport{}
	rec := New(s, tr, nil)
	require.NoError(t, rec.Start())

	client := &http.Client{Transport: tr}
	for j := 0; j < 2; j++ {
		resp, err := client.Post(server.URL+"/items", "application/json", strings.NewReader(`{"a":1}`))
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
	}
	require.NoError(t, rec.Stop())
	assert.Equal(t, 0, s.State().Pending)
	require.NoError(t, s.Close(ctx))
	assert.Equal(t, int32(2), hits.Load())

	st, err := store.Open(path, store.ModePlayback, nil)
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	rows, err := st.Requests(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []int{1, 2}, []int{rows[0].Occurrence, rows[1].Occurrence})
	assert.Equal(t, `{"a":1}`, string(rows[0].Body))

	resp, err := st.FindResponse(ctx, rows[0].ID)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, `{"echo":{"a":1}}`, string(resp.Data))
	assert.Contains(t, string(resp.Headers), `"Content-Type":["application/json"]`)
}

func TestRecorderSkipsCancelledRequests(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")
	s, err := session.New(ctx, session.Config{Path: path, Mode: store.ModeCleanRecord})
	require.NoError(t, err)

	reqCtx, cancel := context.WithCancel(ctx)
	tr := &Transport{Base: failingTransport{err: errors.New("net/http: request canceled")}}
	rec := New(s, tr, nil)
	require.NoError(t, rec.Start())

	cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, "http://example.invalid/slow", nil)
	require.NoError(t, err)
	_, err = tr.RoundTrip(req)
	require.Error(t, err)
	require.NoError(t, s.Close(ctx))

	st, err := store.Open(path, store.ModePlayback, nil)
	require.NoError(t, err)
	defer func() { _ = st.Close() }()
	n, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
