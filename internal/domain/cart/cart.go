// Package cart defines the storefront cart model: product kinds, their option
// enums, and the CartItem tagged variant submitted for pricing.
package cart

import (
	"fmt"

	"github.com/go-faster/errors"
)

// ProductKind identifies a printed product family.
type ProductKind string

const (
	// ProfessionsDeFoi are candidate manifestos, printed in batches.
	ProfessionsDeFoi ProductKind = "professions_de_foi"
	// BulletinsDeVote are ballot papers, printed in batches.
	BulletinsDeVote ProductKind = "bulletins_de_vote"
	// Affiches are campaign posters, billed per unit after a first block.
	Affiches ProductKind = "affiches"
)

// Kinds lists every supported product kind.
var Kinds = []ProductKind{ProfessionsDeFoi, BulletinsDeVote, Affiches}

// Valid reports whether k is a known product kind.
func (k ProductKind) Valid() bool {
	switch k {
	case ProfessionsDeFoi, BulletinsDeVote, Affiches:
		return true
	default:
		return false
	}
}

// Impression is the print-side mode.
type Impression string

const (
	Recto      Impression = "recto"
	RectoVerso Impression = "recto_verso"
)

// Valid reports whether i is a known impression mode.
func (i Impression) Valid() bool {
	return i == Recto || i == RectoVerso
}

// BulletinFormat is the ballot list-size format.
type BulletinFormat string

const (
	Liste5to31  BulletinFormat = "liste_5_31"
	Liste32Plus BulletinFormat = "liste_32_plus"
)

// Valid reports whether f is a known ballot format.
func (f BulletinFormat) Valid() bool {
	return f == Liste5to31 || f == Liste32Plus
}

// AfficheFormat is the poster format.
type AfficheFormat string

const (
	GrandFormat AfficheFormat = "grand_format"
	PetitFormat AfficheFormat = "petit_format"
)

// Valid reports whether f is a known poster format.
func (f AfficheFormat) Valid() bool {
	return f == GrandFormat || f == PetitFormat
}

// Signature is the full (kind, options) tuple a cart item is priced against.
// An empty option means the dimension does not apply to the kind; it never
// acts as a wildcard.
type Signature struct {
	Kind           ProductKind
	Impression     Impression
	BulletinFormat BulletinFormat
	AfficheFormat  AfficheFormat
}

// String renders the signature for logs and error messages.
func (s Signature) String() string {
	return fmt.Sprintf("%s{impression=%s bulletin_format=%s affiche_format=%s}",
		s.Kind, orNull(string(s.Impression)), orNull(string(s.BulletinFormat)), orNull(string(s.AfficheFormat)))
}

// Key returns a compact identifier usable as a cache or map key.
func (s Signature) Key() string {
	return string(s.Kind) + "|" + string(s.Impression) + "|" + string(s.BulletinFormat) + "|" + string(s.AfficheFormat)
}

func orNull(v string) string {
	if v == "" {
		return "null"
	}
	return v
}

// Item is a cart line. It is implemented only by the variants in this
// package, so each kind carries exactly the options valid for it.
type Item interface {
	Kind() ProductKind
	Signature() Signature
	Qty() int
	Validate() error

	isItem()
}

// ProfessionsDeFoiItem is a manifesto print run.
type ProfessionsDeFoiItem struct {
	Impression Impression
	Quantity   int
}

func (ProfessionsDeFoiItem) Kind() ProductKind { return ProfessionsDeFoi }
func (i ProfessionsDeFoiItem) Qty() int        { return i.Quantity }
func (ProfessionsDeFoiItem) isItem()           {}

func (i ProfessionsDeFoiItem) Signature() Signature {
	return Signature{Kind: ProfessionsDeFoi, Impression: i.Impression}
}

func (i ProfessionsDeFoiItem) Validate() error {
	if !i.Impression.Valid() {
		return &InvalidOptionError{Kind: ProfessionsDeFoi, Field: "impression", Value: string(i.Impression)}
	}
	return validateQuantity(ProfessionsDeFoi, i.Quantity)
}

// BulletinsDeVoteItem is a ballot print run.
type BulletinsDeVoteItem struct {
	Impression     Impression
	BulletinFormat BulletinFormat
	Quantity       int
}

func (BulletinsDeVoteItem) Kind() ProductKind { return BulletinsDeVote }
func (i BulletinsDeVoteItem) Qty() int        { return i.Quantity }
func (BulletinsDeVoteItem) isItem()           {}

func (i BulletinsDeVoteItem) Signature() Signature {
	return Signature{Kind: BulletinsDeVote, Impression: i.Impression, BulletinFormat: i.BulletinFormat}
}

func (i BulletinsDeVoteItem) Validate() error {
	if !i.Impression.Valid() {
		return &InvalidOptionError{Kind: BulletinsDeVote, Field: "impression", Value: string(i.Impression)}
	}
	if !i.BulletinFormat.Valid() {
		return &InvalidOptionError{Kind: BulletinsDeVote, Field: "bulletinFormat", Value: string(i.BulletinFormat)}
	}
	return validateQuantity(BulletinsDeVote, i.Quantity)
}

// AffichesItem is a poster order.
type AffichesItem struct {
	AfficheFormat AfficheFormat
	Quantity      int
}

func (AffichesItem) Kind() ProductKind { return Affiches }
func (i AffichesItem) Qty() int        { return i.Quantity }
func (AffichesItem) isItem()           {}

func (i AffichesItem) Signature() Signature {
	return Signature{Kind: Affiches, AfficheFormat: i.AfficheFormat}
}

func (i AffichesItem) Validate() error {
	if !i.AfficheFormat.Valid() {
		return &InvalidOptionError{Kind: Affiches, Field: "afficheFormat", Value: string(i.AfficheFormat)}
	}
	return validateQuantity(Affiches, i.Quantity)
}

// ErrEmptyCart is returned when a cart has no items.
var ErrEmptyCart = errors.New("cart has no items")

// MaxQuantity is the largest quantity accepted for a single item.
const MaxQuantity = 1_000_000

// InvalidQuantityError indicates a quantity outside [1, MaxQuantity].
type InvalidQuantityError struct {
	Kind     ProductKind
	Quantity int
}

func (e *InvalidQuantityError) Error() string {
	if e.Quantity > MaxQuantity {
		return fmt.Sprintf("quantity must not exceed %d for %s, got %d", MaxQuantity, e.Kind, e.Quantity)
	}
	return fmt.Sprintf("quantity must be greater than 0 for %s, got %d", e.Kind, e.Quantity)
}

// InvalidOptionError indicates an option value outside its enum.
type InvalidOptionError struct {
	Kind  ProductKind
	Field string
	Value string
}

func (e *InvalidOptionError) Error() string {
	return fmt.Sprintf("invalid %s %q for %s", e.Field, e.Value, e.Kind)
}

func validateQuantity(kind ProductKind, qty int) error {
	if qty <= 0 || qty > MaxQuantity {
		return &InvalidQuantityError{Kind: kind, Quantity: qty}
	}
	return nil
}

// Validate checks every item of a cart. The returned error is wrapped with the
// offending item index.
func Validate(items []Item) error {
	if len(items) == 0 {
		return ErrEmptyCart
	}
	for i, item := range items {
		if item == nil {
			return errors.Errorf("item %d: missing", i)
		}
		if err := item.Validate(); err != nil {
			return errors.Wrapf(err, "item %d", i)
		}
	}
	return nil
}

// FromSignature rebuilds the cart item described by sig, e.g. from a stored
// order row. Options that do not apply to the kind must be empty.
func FromSignature(sig Signature, qty int) (Item, error) {
	var item Item
	switch sig.Kind {
	case ProfessionsDeFoi:
		if sig.BulletinFormat != "" || sig.AfficheFormat != "" {
			return nil, errors.Errorf("signature %s: cross-kind options", sig)
		}
		item = ProfessionsDeFoiItem{Impression: sig.Impression, Quantity: qty}
	case BulletinsDeVote:
		if sig.AfficheFormat != "" {
			return nil, errors.Errorf("signature %s: cross-kind options", sig)
		}
		item = BulletinsDeVoteItem{Impression: sig.Impression, BulletinFormat: sig.BulletinFormat, Quantity: qty}
	case Affiches:
		if sig.Impression != "" || sig.BulletinFormat != "" {
			return nil, errors.Errorf("signature %s: cross-kind options", sig)
		}
		item = AffichesItem{AfficheFormat: sig.AfficheFormat, Quantity: qty}
	default:
		return nil, errors.Errorf("unknown product kind %q", sig.Kind)
	}
	if err := item.Validate(); err != nil {
		return nil, err
	}
	return item, nil
}
