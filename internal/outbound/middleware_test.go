package outbound

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestMiddlewareFlushesAfterHandler(t *testing.T) {
	target := newRecordingServer(t, http.StatusOK)

	var sawQueue bool
	h := Middleware(Options{}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q, ok := FromContext(r.Context())
		sawQueue = ok
		q.Enqueue(http.MethodPost, target.URL)
		q.Enqueue(http.MethodPost, target.URL)
		assert.EqualValues(t, 0, target.hits.Load())
		w.WriteHeader(http.StatusCreated)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))

	assert.True(t, sawQueue)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.EqualValues(t, 2, target.hits.Load())
}

func TestMiddlewareWithDrainer(t *testing.T) {
	target := newRecordingServer(t, http.StatusOK)
	d := NewDrainer(nil)

	h := Middleware(Options{}, d)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q, _ := FromContext(r.Context())
		q.Enqueue(http.MethodPost, target.URL)
	}))

	for i := 0; i < 3; i++ {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Wait(ctx))
	assert.EqualValues(t, 3, target.hits.Load())
}

func TestDrainerWaitHonoursContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	d := NewDrainer(nil)
	q := New(Options{Timeout: 5 * time.Second})
	q.Enqueue(http.MethodGet, srv.URL)
	d.Go(context.Background(), q)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Wait(ctx), context.DeadlineExceeded)
}

func TestFromContextWithoutQueue(t *testing.T) {
	q, ok := FromContext(context.Background())
	assert.False(t, ok)
	assert.Nil(t, q)
}

func TestDoFlushesAndReturnsError(t *testing.T) {
	target := newRecordingServer(t, http.StatusOK)
	boom := errors.New("boom")

	res, err := Do(context.Background(), Options{}, func(ctx context.Context) error {
		q, ok := FromContext(ctx)
		require.True(t, ok)
		q.Enqueue(http.MethodPost, target.URL)
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, res.Sent)
	assert.EqualValues(t, 1, target.hits.Load())
}

func TestMiddlewareReusesConnections(t *testing.T) {
	var opened atomic.Int64
	target := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	target.Config.ConnState = func(_ net.Conn, state http.ConnState) {
		if state == http.StateNew {
			opened.Add(1)
		}
	}
	target.Start()
	t.Cleanup(target.Close)

	h := Middleware(Options{}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q, _ := FromContext(r.Context())
		q.Enqueue(http.MethodPost, target.URL, WithJSONBody([]byte(`{}`)))
	}))

	for i := 0; i < 50; i++ {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil))
	}

	assert.LessOrEqual(t, opened.Load(), int64(2))
}

func TestMiddlewareLogsScheduledFlush(t *testing.T) {
	target := newRecordingServer(t, http.StatusOK)
	core, logs := observer.New(zapcore.DebugLevel)

	h := Middleware(Options{Logger: zap.New(core)}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q, _ := FromContext(r.Context())
		q.Enqueue(http.MethodPost, target.URL)
		q.Enqueue(http.MethodPost, target.URL)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/events", nil))

	scheduled := logs.FilterMessage("outbound flush scheduled").All()
	require.Len(t, scheduled, 1)
	assert.Equal(t, "/api/v1/events", scheduled[0].ContextMap()["path"])
}
