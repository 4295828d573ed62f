package pricing

import (
	"fmt"

	"github.com/xenking/printshop/internal/domain/cart"
)

// NoPricingFoundError indicates that no active tier matches a signature. It is
// the customer's selection that is unavailable.
type NoPricingFoundError struct {
	Signature cart.Signature
}

func (e *NoPricingFoundError) Error() string {
	return fmt.Sprintf("selection not available: no pricing found for %s", e.Signature)
}

// IncompleteGridError indicates matching tiers exist but leave part of the
// priced quantity uncovered. It is a configuration defect.
type IncompleteGridError struct {
	Signature         cart.Signature
	RequestedQuantity int
	PricedQuantity    int
	Uncovered         int
}

func (e *IncompleteGridError) Error() string {
	return fmt.Sprintf("incomplete pricing grid for %s: %d of %d units unpriced (requested %d)",
		e.Signature, e.Uncovered, e.PricedQuantity, e.RequestedQuantity)
}

// InvalidGridError indicates a tier that cannot be applied, such as a
// non-positive block size.
type InvalidGridError struct {
	Signature cart.Signature
	Seq       int
	Reason    string
}

func (e *InvalidGridError) Error() string {
	return fmt.Sprintf("invalid pricing tier seq=%d for %s: %s", e.Seq, e.Signature, e.Reason)
}
