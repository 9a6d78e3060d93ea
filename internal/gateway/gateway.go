// Package gateway performs token transfers and swaps by calling the external
// transaction service. Every outcome, including failure, is reported as a
// human-readable sentence the agent can relay.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xuegao65/agent-back/internal/catalog"
	"github.com/xuegao65/agent-back/internal/model"
	"github.com/xuegao65/agent-back/pkg/logger"
	"github.com/xuegao65/agent-back/pkg/metrics"
	"github.com/xuegao65/agent-back/pkg/tracing"
)

const (
	msgTokenNotFound    = "Token not found."
	msgInvalidAmount    = "Invalid amount."
	msgInvalidRecipient = "Invalid recipient address."

	actionSend = "send_tokens"
	actionSwap = "swap_tokens"
)

// TokenResolver looks tokens up by symbol or mint address.
type TokenResolver interface {
	Resolve(ctx context.Context, query string) (*model.Token, error)
}

// Gateway talks to the transaction service.
type Gateway struct {
	tokens     TokenResolver
	baseURL    string
	secret     string
	httpClient *http.Client
	tracer     trace.Tracer
	log        *logger.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithHTTPClient overrides the client used for transaction requests.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) {
		g.httpClient = c
	}
}

// New creates a Gateway posting to baseURL with secret as the Authorization value.
func New(tokens TokenResolver, baseURL, secret string, log *logger.Logger, opts ...Option) *Gateway {
	g := &Gateway{
		tokens:     tokens,
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		secret:     secret,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		tracer:     tracing.Tracer("gateway"),
		log:        log.Named("gateway"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type sendRequest struct {
	Address  string `json:"address"`
	Amount   string `json:"amount"`
	Mint     string `json:"mint"`
	Decimals int    `json:"decimals"`
}

type swapRequest struct {
	InputMint  string `json:"input_mint"`
	OutputMint string `json:"output_mint"`
	Amount     string `json:"amount"`
	Decimals   int    `json:"decimals"`
}

// SendTokensByAddress sends amount of the token minted at tokenAddress to the
// recipient.
func (g *Gateway) SendTokensByAddress(ctx context.Context, to, amount, tokenAddress string) string {
	return g.send(ctx, to, amount, tokenAddress)
}

// SendTokensBySymbol sends amount of the token with the given symbol to the
// recipient.
func (g *Gateway) SendTokensBySymbol(ctx context.Context, to, amount, symbol string) string {
	return g.send(ctx, to, amount, symbol)
}

func (g *Gateway) send(ctx context.Context, to, amount, tokenQuery string) string {
	ctx, span := g.tracer.Start(ctx, "gateway.send_tokens", trace.WithAttributes(
		attribute.String("token.query", tokenQuery),
		attribute.String("amount", amount),
	))
	defer span.End()

	tok, err := g.tokens.Resolve(ctx, tokenQuery)
	if err != nil {
		return g.resolveFailure(span, actionSend, "Error sending tokens", err)
	}
	if !validAmount(amount) {
		return g.reject(span, actionSend, msgInvalidAmount)
	}
	if !validAddress(to) {
		return g.reject(span, actionSend, msgInvalidRecipient)
	}

	payload := sendRequest{
		Address:  to,
		Amount:   strings.TrimSpace(amount),
		Mint:     tok.Address,
		Decimals: *tok.Decimals,
	}
	status, err := g.post(ctx, "/api/"+actionSend, payload)
	switch {
	case err != nil:
		g.finish(span, actionSend, "error", err)
		return fmt.Sprintf("Error sending tokens: %v", err)
	case status != http.StatusOK:
		g.finish(span, actionSend, "failed", fmt.Errorf("status %d", status))
		return fmt.Sprintf("Failed to send tokens. Status code: %d", status)
	}

	g.finish(span, actionSend, "success", nil)
	return fmt.Sprintf("Sent %s tokens to %s.", amount, to)
}

// SwapTokens swaps amount of fromSymbol into toSymbol. Decimals of the input
// token are sent along with the amount.
func (g *Gateway) SwapTokens(ctx context.Context, fromSymbol, toSymbol, amount string) string {
	ctx, span := g.tracer.Start(ctx, "gateway.swap_tokens", trace.WithAttributes(
		attribute.String("token.from", fromSymbol),
		attribute.String("token.to", toSymbol),
		attribute.String("amount", amount),
	))
	defer span.End()

	from, err := g.tokens.Resolve(ctx, fromSymbol)
	if err != nil {
		return g.resolveFailure(span, actionSwap, "Error swapping tokens", err)
	}
	to, err := g.tokens.Resolve(ctx, toSymbol)
	if err != nil {
		return g.resolveFailure(span, actionSwap, "Error swapping tokens", err)
	}
	if !validAmount(amount) {
		return g.reject(span, actionSwap, msgInvalidAmount)
	}

	payload := swapRequest{
		InputMint:  from.Address,
		OutputMint: to.Address,
		Amount:     strings.TrimSpace(amount),
		Decimals:   *from.Decimals,
	}
	status, err := g.post(ctx, "/api/"+actionSwap, payload)
	switch {
	case err != nil:
		g.finish(span, actionSwap, "error", err)
		return fmt.Sprintf("Error swapping tokens: %v", err)
	case status != http.StatusOK:
		g.finish(span, actionSwap, "failed", fmt.Errorf("status %d", status))
		return fmt.Sprintf("Failed to swap tokens. Status code: %d", status)
	}

	g.finish(span, actionSwap, "success", nil)
	return fmt.Sprintf("Swapped %s %s for %s.", amount, fromSymbol, toSymbol)
}

// post sends one JSON request and returns the response status.
func (g *Gateway) post(ctx context.Context, path string, payload interface{}) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", g.secret)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	return resp.StatusCode, nil
}

func (g *Gateway) resolveFailure(span trace.Span, action, errPrefix string, err error) string {
	if catalog.IsNotFound(err) {
		return g.reject(span, action, msgTokenNotFound)
	}
	g.finish(span, action, "error", err)
	return fmt.Sprintf("%s: %v", errPrefix, err)
}

func (g *Gateway) reject(span trace.Span, action, msg string) string {
	metrics.ActionRequestsTotal.WithLabelValues(action, "rejected").Inc()
	span.SetAttributes(attribute.String("outcome", "rejected"))
	g.log.Info("action rejected", zap.String("action", action), zap.String("reason", msg))
	return msg
}

func (g *Gateway) finish(span trace.Span, action, outcome string, err error) {
	metrics.ActionRequestsTotal.WithLabelValues(action, outcome).Inc()
	span.SetAttributes(attribute.String("outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.log.Warn("action failed", zap.String("action", action), zap.String("outcome", outcome), zap.Error(err))
		return
	}
	g.log.Info("action completed", zap.String("action", action))
}

func validAmount(amount string) bool {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	return err == nil && d.IsPositive()
}

// validAddress reports whether s is a base58-encoded 32-byte public key.
func validAddress(s string) bool {
	raw, err := base58.Decode(s)
	return err == nil && len(raw) == 32
}
