package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Condor83/vehicle-inventory-system-v2/internal/domain"
	"github.com/Condor83/vehicle-inventory-system-v2/internal/store"
)

// PriceEventHandler serves `GET /price-events?vin=`, the price-change audit
// trail a reconciled price drop produces.
type PriceEventHandler struct {
	store  *store.Store
	logger *slog.Logger
}

func NewPriceEventHandler(st *store.Store, logger *slog.Logger) *PriceEventHandler {
	return &PriceEventHandler{store: st, logger: logger}
}

func (h *PriceEventHandler) ListPriceEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	vin := q.Get("vin")
	if vin == "" {
		h.jsonError(w, "vin is required", http.StatusBadRequest)
		return
	}

	limit := 50
	if l := q.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	events, err := h.store.ListPriceEvents(ctx, vin, limit)
	if err != nil {
		h.logger.Error("list_price_events_failed", slog.String("vin", vin), slog.String("error", err.Error()))
		h.jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []domain.PriceEvent{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"events": events})
}

func (h *PriceEventHandler) jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
