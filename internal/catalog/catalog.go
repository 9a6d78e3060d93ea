// Package catalog keeps the local token catalog in sync with the upstream
// verified token list and resolves user-supplied symbols or mint addresses.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/xuegao65/agent-back/internal/apperror"
	"github.com/xuegao65/agent-back/internal/model"
	"github.com/xuegao65/agent-back/pkg/logger"
	"github.com/xuegao65/agent-back/pkg/metrics"
)

const maxListBytes = 64 << 20

// Repository is the subset of the store the catalog needs.
type Repository interface {
	UpsertTokens(ctx context.Context, tokens []model.Token) (int64, error)
	FindToken(ctx context.Context, query string) (*model.Token, error)
}

// Result summarises one refresh run.
type Result struct {
	Fetched  int
	Skipped  int
	Affected int64
}

// Catalog refreshes and queries the token catalog.
type Catalog struct {
	repo       Repository
	listURL    string
	httpClient *http.Client
	log        *logger.Logger
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithHTTPClient overrides the client used to download the token list.
func WithHTTPClient(c *http.Client) Option {
	return func(cat *Catalog) {
		cat.httpClient = c
	}
}

// New creates a Catalog reading the list from listURL.
func New(repo Repository, listURL string, log *logger.Logger, opts ...Option) *Catalog {
	c := &Catalog{
		repo:       repo,
		listURL:    strings.TrimSpace(listURL),
		httpClient: &http.Client{Timeout: 45 * time.Second},
		log:        log.Named("catalog"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// upstreamToken is the subset of a token list entry stored in columns. The
// complete entry is kept verbatim in full_data.
type upstreamToken struct {
	Address     string   `json:"address"`
	Name        string   `json:"name"`
	Symbol      string   `json:"symbol"`
	Decimals    *int     `json:"decimals"`
	DailyVolume *float64 `json:"daily_volume"`
	CreatedAt   *string  `json:"created_at"`
}

// Refresh downloads the token list and upserts every entry that has an
// address. A non-2xx answer writes nothing.
func (c *Catalog) Refresh(ctx context.Context) (Result, error) {
	raw, err := c.fetch(ctx)
	if err != nil {
		metrics.TokenRefreshTotal.WithLabelValues("failed").Inc()
		c.log.Error("failed to fetch token list", zap.String("url", c.listURL), zap.Error(err))
		return Result{}, err
	}

	res := Result{Fetched: len(raw)}
	tokens := make([]model.Token, 0, len(raw))
	for _, entry := range raw {
		tok, ok := parseToken(entry)
		if !ok {
			res.Skipped++
			continue
		}
		tokens = append(tokens, tok)
	}

	affected, err := c.repo.UpsertTokens(ctx, tokens)
	if err != nil {
		metrics.TokenRefreshTotal.WithLabelValues("failed").Inc()
		c.log.Error("failed to store tokens", zap.Error(err))
		return res, err
	}
	res.Affected = affected

	metrics.TokenRefreshTotal.WithLabelValues("success").Inc()
	metrics.TokensUpserted.Set(float64(affected))
	c.log.Info("token catalog refreshed",
		zap.Int("fetched", res.Fetched),
		zap.Int("skipped", res.Skipped),
		zap.Int64("affected", res.Affected),
	)
	return res, nil
}

func (c *Catalog) fetch(ctx context.Context) ([]json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.listURL, nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperror.Transport("token list", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, apperror.Upstream("token list", resp.StatusCode)
	}

	var raw []json.RawMessage
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxListBytes)).Decode(&raw); err != nil {
		return nil, apperror.Transport("token list", fmt.Errorf("decode: %w", err))
	}
	return raw, nil
}

func parseToken(entry json.RawMessage) (model.Token, bool) {
	var u upstreamToken
	if err := json.Unmarshal(entry, &u); err != nil {
		return model.Token{}, false
	}
	if strings.TrimSpace(u.Address) == "" {
		return model.Token{}, false
	}

	tok := model.Token{
		Address:     u.Address,
		Name:        u.Name,
		Symbol:      u.Symbol,
		Decimals:    u.Decimals,
		DailyVolume: u.DailyVolume,
		FullData:    datatypes.JSON(entry),
	}
	if u.CreatedAt != nil {
		if ts, err := time.Parse(time.RFC3339Nano, *u.CreatedAt); err == nil {
			ts = ts.UTC()
			tok.ListedAt = &ts
		}
	}
	return tok, true
}

// Resolve returns the token whose address equals query or whose symbol
// matches it ignoring case. Tokens without usable decimals are reported as
// not found.
func (c *Catalog) Resolve(ctx context.Context, query string) (*model.Token, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperror.NotFound("empty token query")
	}

	tok, err := c.repo.FindToken(ctx, query)
	if err != nil {
		return nil, err
	}
	if !tok.ValidDecimals() {
		return nil, apperror.NotFound("token " + query + " has no decimals")
	}
	return tok, nil
}

// IsNotFound reports whether err means the token does not resolve.
func IsNotFound(err error) bool {
	var e *apperror.Error
	return errors.As(err, &e) && e.Code == apperror.CodeNotFound
}
