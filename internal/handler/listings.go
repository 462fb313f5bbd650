package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Condor83/vehicle-inventory-system-v2/internal/domain"
	"github.com/Condor83/vehicle-inventory-system-v2/internal/store"
)

// ListingHandler serves the read-only `GET /listings` control surface.
type ListingHandler struct {
	store  *store.Store
	logger *slog.Logger
}

func NewListingHandler(st *store.Store, logger *slog.Logger) *ListingHandler {
	return &ListingHandler{store: st, logger: logger}
}

// ListListings returns paginated listings, filterable by dealer_id, status,
// and model.
func (h *ListingHandler) ListListings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	limit := 20
	if l := q.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}
	offset := 0
	if o := q.Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	filter := store.ListingFilter{
		Status: q.Get("status"),
		Model:  q.Get("model"),
		Limit:  limit,
		Offset: offset,
	}
	if d := q.Get("dealer_id"); d != "" {
		dealerID, err := strconv.ParseInt(d, 10, 64)
		if err != nil {
			h.jsonError(w, "invalid dealer_id", http.StatusBadRequest)
			return
		}
		filter.DealerID = &dealerID
	}

	listings, total, err := h.store.ListListings(ctx, filter)
	if err != nil {
		h.logger.Error("list_listings_failed", slog.String("error", err.Error()))
		h.jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if listings == nil {
		listings = []domain.Listing{}
	}

	resp := domain.PaginatedResponse[domain.Listing]{
		Items:   listings,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: int64(offset+len(listings)) < total,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *ListingHandler) jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
