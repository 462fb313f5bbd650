package reconcile

import (
	"context"
	"log/slog"

	"github.com/Condor83/vehicle-inventory-system-v2/internal/domain"
	"github.com/Condor83/vehicle-inventory-system-v2/internal/tracing"
)

// absenceStore is the read/write surface the Absence Reconciler needs;
// satisfied by *store.Store.
type absenceStore interface {
	ListingsForAbsenceScope(ctx context.Context, dealerID int64, model string, inventoryRank int) ([]domain.Listing, error)
	UpdateListingStatus(ctx context.Context, dealerID int64, vin, status string) error
}

// AbsenceReconciler applies the two-miss sold transition: a listing not
// observed in a scrape moves available→missing, then missing→sold on the
// next miss; sold is terminal.
type AbsenceReconciler struct {
	store  absenceStore
	logger *slog.Logger
}

func NewAbsenceReconciler(s absenceStore, logger *slog.Logger) *AbsenceReconciler {
	return &AbsenceReconciler{store: s, logger: logger}
}

// Reconcile compares observedVINs (everything the current scrape produced
// for dealerID×model) against the scope's existing listings and transitions
// every listing not observed, per the available->missing->sold status ladder. inventoryRank
// bounds the scope to inventory-fidelity listings (source_rank ≤ rank or
// null); upload-origin listings sit above it and are immune by design.
func (r *AbsenceReconciler) Reconcile(ctx context.Context, dealerID int64, model string, observedVINs map[string]bool, inventoryRank int) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "reconcile.absence")
	defer span.End()

	listings, err := r.store.ListingsForAbsenceScope(ctx, dealerID, model, inventoryRank)
	if err != nil {
		return 0, err
	}

	transitioned := 0
	for _, l := range listings {
		if observedVINs[l.VIN] {
			continue
		}
		next := nextAbsenceStatus(l.Status)
		if next == l.Status {
			continue
		}
		if err := r.store.UpdateListingStatus(ctx, dealerID, l.VIN, next); err != nil {
			return transitioned, err
		}
		transitioned++
	}

	r.logger.Info("absence_reconcile_completed",
		slog.Int64("dealer_id", dealerID),
		slog.String("model", model),
		slog.Int("transitioned", transitioned),
	)
	return transitioned, nil
}

func nextAbsenceStatus(current string) string {
	switch current {
	case domain.StatusSold:
		return domain.StatusSold
	case domain.StatusMissing:
		return domain.StatusSold
	default:
		return domain.StatusMissing
	}
}
