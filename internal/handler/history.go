package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/xuegao65/agent-back/internal/model"
)

// HistoryPager returns pages of a user's exchanges.
type HistoryPager interface {
	Page(ctx context.Context, userID string, page, pageSize int) *model.HistoryPage
}

// HistoryHandler handles GET /history/{user_id}.
type HistoryHandler struct {
	history HistoryPager
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(history HistoryPager) *HistoryHandler {
	return &HistoryHandler{history: history}
}

// Get returns one page of history. page_num and page_size are required and
// must be at least 1.
func (h *HistoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	page, ok := positiveQuery(r, "page_num")
	if !ok {
		writeError(w, http.StatusBadRequest, "page_num must be a positive integer")
		return
	}
	pageSize, ok := positiveQuery(r, "page_size")
	if !ok {
		writeError(w, http.StatusBadRequest, "page_size must be a positive integer")
		return
	}

	writeJSON(w, http.StatusOK, h.history.Page(r.Context(), chi.URLParam(r, "user_id"), page, pageSize))
}

func positiveQuery(r *http.Request, name string) (int, bool) {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
