package seed

import (
	"context"
	"errors"
	"fmt"

	"estatehub/pkg/domain"
)

// Reconciler advances numeric sequences past the highest loaded key.
type Reconciler struct {
	store domain.Store
}

// NewReconciler returns a Reconciler for store.
func NewReconciler(store domain.Store) *Reconciler {
	return &Reconciler{store: store}
}

// Reconcile probes table for its maximum key and sets the sequence to max+1.
// Tables without a numeric sequence report applied=false and no error.
func (r *Reconciler) Reconcile(ctx context.Context, table string) (next int64, applied bool, err error) {
	maxKey, err := r.store.MaxKey(ctx, table)
	if errors.Is(err, domain.ErrNoSequence) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("probe max key of %s: %w", table, err)
	}
	next = maxKey + 1
	if err := r.store.SetSequence(ctx, table, next); err != nil {
		if errors.Is(err, domain.ErrNoSequence) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("advance sequence of %s to %d: %w", table, next, err)
	}
	return next, true, nil
}
