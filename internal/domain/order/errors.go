package order

import (
	"fmt"

	"github.com/xenking/printshop/internal/domain/cart"
)

// RepositoryUnavailableError indicates the rule repository failed while
// looking up tiers for a signature.
type RepositoryUnavailableError struct {
	Signature cart.Signature
	Err       error
}

func (e *RepositoryUnavailableError) Error() string {
	return fmt.Sprintf("pricing repository unavailable for %s: %v", e.Signature, e.Err)
}

func (e *RepositoryUnavailableError) Unwrap() error {
	return e.Err
}
