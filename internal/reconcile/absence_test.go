package reconcile

import (
	"context"
	"testing"

	"github.com/Condor83/vehicle-inventory-system-v2/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAbsenceStore struct {
	listings []domain.Listing
	updates  map[string]string
}

func (f *fakeAbsenceStore) ListingsForAbsenceScope(ctx context.Context, dealerID int64, model string, inventoryRank int) ([]domain.Listing, error) {
	return f.listings, nil
}

func (f *fakeAbsenceStore) UpdateListingStatus(ctx context.Context, dealerID int64, vin, status string) error {
	if f.updates == nil {
		f.updates = map[string]string{}
	}
	f.updates[vin] = status
	return nil
}

func TestReconcile_AvailableToMissingOnFirstMiss(t *testing.T) {
	fs := &fakeAbsenceStore{listings: []domain.Listing{{VIN: "A", Status: domain.StatusAvailable}}}
	r := NewAbsenceReconciler(fs, testLogger())

	n, err := r.Reconcile(context.Background(), 1, "Tacoma", map[string]bool{}, 50)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, domain.StatusMissing, fs.updates["A"])
}

func TestReconcile_MissingToSoldOnSecondMiss(t *testing.T) {
	fs := &fakeAbsenceStore{listings: []domain.Listing{{VIN: "A", Status: domain.StatusMissing}}}
	r := NewAbsenceReconciler(fs, testLogger())

	n, err := r.Reconcile(context.Background(), 1, "Tacoma", map[string]bool{}, 50)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, domain.StatusSold, fs.updates["A"])
}

func TestReconcile_SoldStaysTerminal(t *testing.T) {
	fs := &fakeAbsenceStore{listings: []domain.Listing{{VIN: "A", Status: domain.StatusSold}}}
	r := NewAbsenceReconciler(fs, testLogger())

	n, err := r.Reconcile(context.Background(), 1, "Tacoma", map[string]bool{}, 50)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, fs.updates)
}

func TestReconcile_ObservedVINIsUntouched(t *testing.T) {
	fs := &fakeAbsenceStore{listings: []domain.Listing{{VIN: "A", Status: domain.StatusAvailable}}}
	r := NewAbsenceReconciler(fs, testLogger())

	n, err := r.Reconcile(context.Background(), 1, "Tacoma", map[string]bool{"A": true}, 50)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, fs.updates)
}
