package app

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xuegao65/agent-back/internal/catalog"
	"github.com/xuegao65/agent-back/internal/config"
	"github.com/xuegao65/agent-back/internal/jobs"
	"github.com/xuegao65/agent-back/internal/model"
	"github.com/xuegao65/agent-back/pkg/logger"
)

type memRepo struct {
	tokens map[string]model.Token
}

func (m *memRepo) UpsertTokens(_ context.Context, tokens []model.Token) (int64, error) {
	for _, t := range tokens {
		m.tokens[t.Address] = t
	}
	return int64(len(tokens)), nil
}

func (m *memRepo) FindToken(_ context.Context, query string) (*model.Token, error) {
	t, ok := m.tokens[query]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

type recordedEvents struct {
	events []*model.AgentEvent
}

func (r *recordedEvents) PublishEvent(_ context.Context, e *model.AgentEvent) error {
	r.events = append(r.events, e)
	return nil
}

func TestRefreshTokens_PublishesEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"address":"So11111111111111111111111111111111111111112","name":"Wrapped SOL","symbol":"SOL","decimals":9},
			{"name":"no address","symbol":"BAD","decimals":6}
		]`))
	}))
	defer srv.Close()

	log := logger.NewNop()
	events := &recordedEvents{}
	repo := &memRepo{tokens: make(map[string]model.Token)}
	a := &App{
		cfg:     &config.Config{},
		log:     log,
		events:  events,
		catalog: catalog.New(repo, srv.URL, log),
	}

	require.NoError(t, a.RefreshTokens(context.Background()))
	assert.Len(t, repo.tokens, 1)

	require.Len(t, events.events, 1)
	ev := events.events[0]
	assert.Equal(t, model.EventTokensRefreshed, ev.Type)
	assert.Equal(t, "2", ev.Metadata["fetched"])
	assert.Equal(t, "1", ev.Metadata["skipped"])
	assert.Equal(t, "1", ev.Metadata["affected"])
}

func TestRefreshTokens_UpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	log := logger.NewNop()
	events := &recordedEvents{}
	repo := &memRepo{tokens: make(map[string]model.Token)}
	a := &App{cfg: &config.Config{}, log: log, events: events, catalog: catalog.New(repo, srv.URL, log)}

	require.Error(t, a.RefreshTokens(context.Background()))
	assert.Empty(t, repo.tokens)
	assert.Empty(t, events.events)
}

func TestServer_CancelEndsOpenRequests(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{})
	ended := make(chan struct{})
	a := &App{cfg: &config.Config{ServerPort: "0"}, log: logger.NewNop()}
	server := a.newServer(ctx, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		close(started)
		<-r.Context().Done()
		close(ended)
	}))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = server.Serve(ln) }()

	go func() {
		resp, err := http.Get("http://" + ln.Addr().String() + "/sse")
		if err == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("request never reached the handler")
	}

	cancel()
	select {
	case <-ended:
	case <-time.After(2 * time.Second):
		t.Fatal("open request outlived the server context")
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 2*time.Second)
	defer stop()
	assert.NoError(t, server.Shutdown(shutdownCtx))
}

func TestOpenQueue_InMemoryWithoutRedis(t *testing.T) {
	a := &App{cfg: &config.Config{}, log: logger.NewNop()}

	q, err := a.openQueue(context.Background())
	require.NoError(t, err)
	_, ok := q.(*jobs.MemoryQueue)
	assert.True(t, ok)

	again, err := a.openQueue(context.Background())
	require.NoError(t, err)
	assert.Same(t, q, again)
	require.NoError(t, q.Close())
}
