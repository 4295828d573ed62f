package pricing

import (
	"strconv"

	"github.com/xenking/printshop/internal/domain/cart"
)

// BlockLabel names a breakdown line the way the storefront prints it.
func BlockLabel(kind cart.ProductKind, seq, blockSize int) string {
	if kind == cart.Affiches {
		switch {
		case blockSize == 10 && seq == 1:
			return "10 premières"
		case blockSize == 1:
			return "Unité en plus"
		}
	}
	return "Palier " + strconv.Itoa(seq) + " (bloc " + strconv.Itoa(blockSize) + ")"
}
