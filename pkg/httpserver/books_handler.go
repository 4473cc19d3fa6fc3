package httpserver

import (
	"net/http"
	"strconv"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/fletcherlabs/fletcher/internal/market"
	"github.com/fletcherlabs/fletcher/pkg/types"
)

const (
	defaultBookDepth = 5
	maxBookDepth     = 50
)

type booksHandler struct {
	markets *market.Manager
	pairs   []types.MarketPair
	logger  *zap.Logger
}

func newBooksHandler(m *market.Manager, pairs []types.MarketPair, logger *zap.Logger) *booksHandler {
	return &booksHandler{markets: m, pairs: pairs, logger: logger}
}

// handleBooks serves GET /api/books?depth=N with every market's books.
func (h *booksHandler) handleBooks(w http.ResponseWriter, r *http.Request) {
	depth := defaultBookDepth
	if raw := r.URL.Query().Get("depth"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxBookDepth {
			http.Error(w, "depth must be an integer in [1,50]", http.StatusBadRequest)
			return
		}
		depth = parsed
	}

	snapshots := h.markets.SnapshotAll(depth)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"depth":   depth,
		"markets": snapshots,
	}); err != nil {
		h.logger.Error("encode-books-response", zap.Error(err))
	}
}

// handlePairs serves GET /api/pairs with the configured pair bindings.
func (h *booksHandler) handlePairs(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"count": len(h.pairs),
		"pairs": h.pairs,
	}); err != nil {
		h.logger.Error("encode-pairs-response", zap.Error(err))
	}
}
