package catalog

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xuegao65/agent-back/internal/apperror"
	"github.com/xuegao65/agent-back/internal/model"
	"github.com/xuegao65/agent-back/pkg/logger"
)

type fakeRepo struct {
	upserted  [][]model.Token
	upsertN   int64
	upsertErr error

	tokens map[string]*model.Token
}

func (f *fakeRepo) UpsertTokens(_ context.Context, tokens []model.Token) (int64, error) {
	f.upserted = append(f.upserted, tokens)
	return f.upsertN, f.upsertErr
}

func (f *fakeRepo) FindToken(_ context.Context, query string) (*model.Token, error) {
	if tok, ok := f.tokens[strings.ToUpper(query)]; ok {
		return tok, nil
	}
	return nil, apperror.NotFound("token " + query)
}

const tokenList = `[
	{"address":"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v","name":"USD Coin","symbol":"USDC","decimals":6,"daily_volume":123456.7,"created_at":"2024-04-26T10:56:58.893768Z","tags":["verified"]},
	{"address":"So11111111111111111111111111111111111111112","name":"Wrapped SOL","symbol":"SOL","decimals":9,"daily_volume":null},
	{"name":"No Address","symbol":"NOPE","decimals":2}
]`

func TestRefresh_UpsertsEntriesWithAddress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "verified", r.URL.Query().Get("tags"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(tokenList))
	}))
	defer srv.Close()

	repo := &fakeRepo{upsertN: 2}
	c := New(repo, srv.URL+"/tokens?tags=verified", logger.NewNop())

	res, err := c.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Fetched: 3, Skipped: 1, Affected: 2}, res)

	require.Len(t, repo.upserted, 1)
	stored := repo.upserted[0]
	require.Len(t, stored, 2)

	usdc := stored[0]
	assert.Equal(t, "USDC", usdc.Symbol)
	require.NotNil(t, usdc.Decimals)
	assert.Equal(t, 6, *usdc.Decimals)
	require.NotNil(t, usdc.DailyVolume)
	require.NotNil(t, usdc.ListedAt)
	assert.Equal(t, 2024, usdc.ListedAt.Year())
	assert.Contains(t, string(usdc.FullData), `"tags":["verified"]`)

	assert.Nil(t, stored[1].DailyVolume)
	assert.Nil(t, stored[1].ListedAt)
}

func TestRefresh_NonSuccessWritesNothing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	repo := &fakeRepo{}
	c := New(repo, srv.URL, logger.NewNop())

	_, err := c.Refresh(context.Background())
	require.Error(t, err)

	var appErr *apperror.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperror.CodeUpstreamFailure, appErr.Code)
	assert.Equal(t, http.StatusBadGateway, appErr.StatusCode)
	assert.Empty(t, repo.upserted)
}

func TestRefresh_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"not":"a list"}`))
	}))
	defer srv.Close()

	repo := &fakeRepo{}
	_, err := New(repo, srv.URL, logger.NewNop()).Refresh(context.Background())
	assert.True(t, apperror.Is(err, apperror.CodeTransport))
	assert.Empty(t, repo.upserted)
}

func TestRefresh_StoreFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(tokenList))
	}))
	defer srv.Close()

	repo := &fakeRepo{upsertErr: apperror.Storage("upsert tokens", errors.New("conn reset"))}
	_, err := New(repo, srv.URL, logger.NewNop()).Refresh(context.Background())
	assert.True(t, apperror.Is(err, apperror.CodeStorage))
}

func TestResolve(t *testing.T) {
	six, neg := 6, -1
	repo := &fakeRepo{tokens: map[string]*model.Token{
		"USDC":   {Address: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", Symbol: "USDC", Decimals: &six},
		"BROKEN": {Address: "Broken111", Symbol: "BROKEN", Decimals: &neg},
		"NODEC":  {Address: "NoDec111", Symbol: "NODEC"},
	}}
	c := New(repo, "http://unused", logger.NewNop())
	ctx := context.Background()

	tok, err := c.Resolve(ctx, " usdc ")
	require.NoError(t, err)
	assert.Equal(t, 6, *tok.Decimals)

	for _, q := range []string{"ZZZ", "broken", "nodec", ""} {
		_, err := c.Resolve(ctx, q)
		assert.True(t, IsNotFound(err), "query %q", q)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestWithHTTPClient(t *testing.T) {
	var hosts []string
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		hosts = append(hosts, r.URL.Host)
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(tokenList)),
			Header:     make(http.Header),
			Request:    r,
		}, nil
	})}
	repo := &fakeRepo{upsertN: 2}
	c := New(repo, "http://tokens.internal/tokens", logger.NewNop(), WithHTTPClient(client))

	res, err := c.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Fetched)
	assert.Equal(t, []string{"tokens.internal"}, hosts)
}
