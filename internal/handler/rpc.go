package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/xuegao65/agent-back/pkg/logger"
)

const maxRPCBytes = 4 << 20

// RPCHandler proxies Solana JSON-RPC calls to a fixed upstream.
type RPCHandler struct {
	upstream   string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewRPCHandler creates a proxy to upstream.
func NewRPCHandler(upstream string, httpClient *http.Client, log *logger.Logger) *RPCHandler {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &RPCHandler{
		upstream:   upstream,
		httpClient: httpClient,
		logger:     log,
	}
}

// Proxy forwards the request (with its JSON body for POST) and relays the
// upstream JSON. Any failure answers 500 with a fixed detail.
func (h *RPCHandler) Proxy(w http.ResponseWriter, r *http.Request) {
	out, err := h.forward(r)
	if err != nil {
		h.logger.Warn("rpc proxy failed", zap.String("method", r.Method), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "Error fetching data"})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

func (h *RPCHandler) forward(r *http.Request) ([]byte, error) {
	if h.upstream == "" {
		return nil, errors.New("rpc upstream not configured")
	}

	var body io.Reader
	if r.Method == http.MethodPost {
		raw, err := io.ReadAll(io.LimitReader(r.Body, maxRPCBytes))
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		if !json.Valid(raw) {
			return nil, errors.New("request body is not JSON")
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(r.Context(), r.Method, h.upstream, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	out, err := io.ReadAll(io.LimitReader(resp.Body, maxRPCBytes))
	if err != nil {
		return nil, fmt.Errorf("read upstream: %w", err)
	}
	if !json.Valid(out) {
		return nil, fmt.Errorf("upstream returned non-JSON body with status %d", resp.StatusCode)
	}
	return out, nil
}
